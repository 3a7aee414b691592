package main

import (
	"fmt"
	"strings"
	"time"

	"TG_group_guardian/internal/repository"

	"github.com/spf13/viper"
)

const (
	configPath   = "./"
	configName   = "config"
	configFormat = "yaml"
)

type Config struct {
	Database repository.Config `yaml:"database"`
	Server   ServerConfig      `yaml:"server"`

	Telegram     TelegramConfig     `yaml:"telegram"`
	Verification VerificationConfig `yaml:"verification"`
	Ranking      RankingConfig      `yaml:"ranking"`

	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

type TelegramConfig struct {
	BotToken    string  `yaml:"botToken"`
	GroupChatID int64   `yaml:"groupChatId"`
	AdminIDs    []int64 `yaml:"adminIds"`
	DebugMode   bool    `yaml:"debugMode"`
}

type VerificationConfig struct {
	ChallengeTimeoutSeconds int `yaml:"challengeTimeoutSeconds"`
	MaxChallengeAttempts    int `yaml:"maxChallengeAttempts"`
	SweepIntervalSeconds    int `yaml:"sweepIntervalSeconds"`
}

type RankingConfig struct {
	PageSize int `yaml:"pageSize"`
}

func (c *VerificationConfig) ChallengeTimeout() time.Duration {
	return time.Duration(c.ChallengeTimeoutSeconds) * time.Second
}

func (c *VerificationConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(configPath)
	viper.SetConfigType(configFormat)

	viper.SetDefault("verification.challengeTimeoutSeconds", 300)
	viper.SetDefault("verification.maxChallengeAttempts", 3)
	viper.SetDefault("verification.sweepIntervalSeconds", 30)
	viper.SetDefault("ranking.pageSize", 20)
	viper.SetDefault("logLevel", "info")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.botToken is required")
	}
	if c.Telegram.GroupChatID == 0 {
		return fmt.Errorf("telegram.groupChatId is required")
	}
	if c.Verification.SweepIntervalSeconds >= c.Verification.ChallengeTimeoutSeconds {
		return fmt.Errorf("verification.sweepIntervalSeconds must be below challengeTimeoutSeconds")
	}
	return nil
}
