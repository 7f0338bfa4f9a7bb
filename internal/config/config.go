package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Delta    DeltaConfig    `mapstructure:"delta"`
	Login    LoginConfig    `mapstructure:"login"`
	OneBot   OneBotConfig   `mapstructure:"onebot"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`
	Cron     CronConfig     `mapstructure:"cron"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql | sqlite
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"db_name"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DeltaConfig 游戏后端接口配置
type DeltaConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	RateLimitQPS int           `mapstructure:"rate_limit_qps"`
}

// LoginConfig 扫码登录轮询配置
type LoginConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	Concurrency   int           `mapstructure:"concurrency"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
	RateLimitQPS  int           `mapstructure:"rate_limit_qps"` // 每秒新开始的登录会话数
}

type OneBotConfig struct {
	APIURL      string `mapstructure:"api_url"`
	AccessToken string `mapstructure:"access_token"`
}

type SecurityConfig struct {
	AdminToken        string `mapstructure:"admin_token"`
	CredentialAddSalt string `mapstructure:"credential_add_salt"`
}

type LogConfig struct {
	Level        string        `mapstructure:"level"`
	Dir          string        `mapstructure:"dir"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time"`
}

type CronConfig struct {
	CredentialRefreshSpec string `mapstructure:"credential_refresh_spec"`
}

func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	// 设置环境变量映射
	viper.SetEnvPrefix("")
	viper.AutomaticEnv()

	SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("配置文件读取失败，使用环境变量: %v", err)
	}

	return FromViper(viper.GetViper())
}

// SetDefaults 注册所有配置项的默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "6383")
	v.SetDefault("HTTP_READ_TIMEOUT", "10s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "15s")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_NAME", "deltauid")
	v.SetDefault("DB_SQLITE_PATH", "deltauid.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)

	v.SetDefault("DELTA_BASE_URL", "https://ams.shallow.ink/ide")
	v.SetDefault("DELTA_HTTP_TIMEOUT", "15s")
	v.SetDefault("DELTA_RATE_LIMIT_QPS", 20)

	v.SetDefault("LOGIN_MAX_ATTEMPTS", 120)
	v.SetDefault("LOGIN_POLL_INTERVAL", "500ms")
	v.SetDefault("LOGIN_CONCURRENCY", 8)
	v.SetDefault("LOGIN_QUEUE_CAPACITY", 64)
	v.SetDefault("LOGIN_RATE_LIMIT_QPS", 5)

	v.SetDefault("ONEBOT_API_URL", "http://127.0.0.1:5700")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_AGE", "168h")
	v.SetDefault("LOG_ROTATION_TIME", "24h")

	v.SetDefault("CREDENTIAL_REFRESH_SPEC", "0 0 3 * * *")
}

// FromViper 将viper中的键映射到配置结构
func FromViper(v *viper.Viper) *Config {
	var config Config

	config.Server.Port = v.GetString("PORT")
	config.Server.ReadTimeout = v.GetDuration("HTTP_READ_TIMEOUT")
	config.Server.WriteTimeout = v.GetDuration("HTTP_WRITE_TIMEOUT")

	config.Database.Driver = v.GetString("DB_DRIVER")
	config.Database.Host = v.GetString("DB_HOST")
	config.Database.Port = v.GetString("DB_PORT")
	config.Database.User = v.GetString("DB_USER")
	config.Database.Password = v.GetString("DB_PASSWORD")
	config.Database.DBName = v.GetString("DB_NAME")
	config.Database.SQLitePath = v.GetString("DB_SQLITE_PATH")
	config.Database.MaxOpenConns = v.GetInt("DB_MAX_OPEN_CONNS")
	config.Database.MaxIdleConns = v.GetInt("DB_MAX_IDLE_CONNS")

	config.Delta.BaseURL = v.GetString("DELTA_BASE_URL")
	config.Delta.HTTPTimeout = v.GetDuration("DELTA_HTTP_TIMEOUT")
	config.Delta.RateLimitQPS = v.GetInt("DELTA_RATE_LIMIT_QPS")

	config.Login.MaxAttempts = v.GetInt("LOGIN_MAX_ATTEMPTS")
	config.Login.PollInterval = v.GetDuration("LOGIN_POLL_INTERVAL")
	config.Login.Concurrency = v.GetInt("LOGIN_CONCURRENCY")
	config.Login.QueueCapacity = v.GetInt("LOGIN_QUEUE_CAPACITY")
	config.Login.RateLimitQPS = v.GetInt("LOGIN_RATE_LIMIT_QPS")

	config.OneBot.APIURL = v.GetString("ONEBOT_API_URL")
	config.OneBot.AccessToken = v.GetString("ONEBOT_ACCESS_TOKEN")

	config.Security.AdminToken = v.GetString("ADMIN_TOKEN")
	config.Security.CredentialAddSalt = v.GetString("CREDENTIAL_ADD_SALT")

	config.Log.Level = v.GetString("LOG_LEVEL")
	config.Log.Dir = v.GetString("LOG_DIR")
	config.Log.MaxAge = v.GetDuration("LOG_MAX_AGE")
	config.Log.RotationTime = v.GetDuration("LOG_ROTATION_TIME")

	config.Cron.CredentialRefreshSpec = v.GetString("CREDENTIAL_REFRESH_SPEC")

	return &config
}
