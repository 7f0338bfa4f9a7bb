package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"deltauid-backend-go/internal/model"

	"go.uber.org/zap"
)

// CredentialRepository 登录凭据存储，(bot_id, user_id) 唯一，重复登录覆盖旧凭据
type CredentialRepository struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
	now    func() time.Time
}

func NewCredentialRepository(db *Database, logger *zap.Logger) *CredentialRepository {
	return &CredentialRepository{
		db:     db.GetDB(),
		driver: db.Driver(),
		logger: logger,
		now:    time.Now,
	}
}

const credentialColumns = `id, bot_id, user_id, group_id, platform, open_id, access_token,
			  is_valid, last_check_at, created_at, updated_at`

func (r *CredentialRepository) upsertQuery() string {
	insert := `INSERT INTO df_credentials (bot_id, user_id, group_id, platform, open_id, access_token, is_valid, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if r.driver == DriverSQLite {
		return insert + ` ON CONFLICT(bot_id, user_id) DO UPDATE SET
			  group_id = excluded.group_id, platform = excluded.platform, open_id = excluded.open_id,
			  access_token = excluded.access_token, is_valid = excluded.is_valid, updated_at = excluded.updated_at`
	}
	return insert + ` ON DUPLICATE KEY UPDATE
			  group_id = VALUES(group_id), platform = VALUES(platform), open_id = VALUES(open_id),
			  access_token = VALUES(access_token), is_valid = VALUES(is_valid), updated_at = VALUES(updated_at)`
}

// Save 写入或覆盖凭据，单条语句完成
func (r *CredentialRepository) Save(ctx context.Context, cred *model.Credential) error {
	now := r.now()
	_, err := r.db.ExecContext(ctx, r.upsertQuery(),
		cred.BotID, cred.UserID, cred.GroupID, string(cred.Platform), cred.OpenID, cred.AccessToken, true, now, now)
	if err != nil {
		r.logger.Error("保存凭据失败", zap.Error(err),
			zap.String("bot_id", cred.BotID),
			zap.String("user_id", cred.UserID))
		return err
	}

	r.logger.Info("凭据保存成功",
		zap.String("bot_id", cred.BotID),
		zap.String("user_id", cred.UserID),
		zap.String("platform", string(cred.Platform)))
	return nil
}

// Load 读取凭据，不存在时返回 nil, nil
func (r *CredentialRepository) Load(ctx context.Context, botID, userID string) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM df_credentials WHERE bot_id = ? AND user_id = ?`

	cred, err := scanCredential(r.db.QueryRowContext(ctx, query, botID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("查询凭据失败", zap.Error(err), zap.String("bot_id", botID), zap.String("user_id", userID))
		return nil, err
	}
	return cred, nil
}

// GetAll 获取所有凭据
func (r *CredentialRepository) GetAll(ctx context.Context) ([]model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM df_credentials ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("查询凭据列表失败", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			r.logger.Error("扫描凭据数据失败", zap.Error(err))
			return nil, err
		}
		creds = append(creds, *cred)
	}
	return creds, rows.Err()
}

// UpdateCheckStatus 记录凭据有效性检查结果
// 仅当 access_token 仍为被检查的值时才更新，检查期间重新登录的凭据保持不变
func (r *CredentialRepository) UpdateCheckStatus(ctx context.Context, id int64, accessToken string, valid bool) error {
	query := `UPDATE df_credentials SET is_valid = ?, last_check_at = ? WHERE id = ? AND access_token = ?`

	result, err := r.db.ExecContext(ctx, query, valid, r.now(), id, accessToken)
	if err != nil {
		r.logger.Error("更新凭据检查状态失败", zap.Error(err), zap.Int64("id", id))
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		r.logger.Info("凭据已被重新登录覆盖，忽略检查结果", zap.Int64("id", id))
	}
	return nil
}

// Count 凭据数量
func (r *CredentialRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM df_credentials`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCredential(row rowScanner) (*model.Credential, error) {
	var (
		cred      model.Credential
		platform  string
		lastCheck sql.NullTime
	)
	err := row.Scan(
		&cred.ID,
		&cred.BotID,
		&cred.UserID,
		&cred.GroupID,
		&platform,
		&cred.OpenID,
		&cred.AccessToken,
		&cred.IsValid,
		&lastCheck,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cred.Platform = model.Platform(platform)
	if lastCheck.Valid {
		t := lastCheck.Time
		cred.LastCheckAt = &t
	}
	return &cred, nil
}
