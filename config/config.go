// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Application config structure
type AppConfig struct {
	Name        string `mapstructure:"service_name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Host        string `mapstructure:"host" validate:"required"`
	Port        int    `mapstructure:"port" validate:"required"`
	Environment string `mapstructure:"environment"`

	// Provider credentials. The gateway cannot take calls without all three,
	// so startup fails fast when any is missing.
	DeepgramApiKey string `mapstructure:"deepgram_api_key" validate:"required"`
	SarvamApiKey   string `mapstructure:"sarvam_api_key" validate:"required"`
	OpenAIApiKey   string `mapstructure:"openai_api_key" validate:"required"`

	DatabaseConfig  DatabaseConfig  `mapstructure:"database" validate:"required"`
	RedisConfig     RedisConfig     `mapstructure:"redis"`
	RecordingConfig RecordingConfig `mapstructure:"recording"`
	AdminConfig     AdminConfig     `mapstructure:"admin"`
	AgentConfig     AgentConfig     `mapstructure:"agent"`
	LLMConfig       LLMConfig       `mapstructure:"llm"`
	SttConfig       SttConfig       `mapstructure:"stt"`
	TtsConfig       TtsConfig       `mapstructure:"tts"`
}

// DatabaseConfig selects the relational store for call logs and agent
// definitions. sqlite keeps single-node deployments dependency free;
// postgres is for anything shared.
type DatabaseConfig struct {
	Driver             string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	DSN                string `mapstructure:"dsn" validate:"required"`
	MaxOpenConnections int    `mapstructure:"max_open_connection"`
	MaxIdleConnections int    `mapstructure:"max_idle_connection"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

type RecordingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

type AdminConfig struct {
	// ApiKey guards the admin REST surface. Empty disables the check, which
	// is only acceptable for local development.
	ApiKey string `mapstructure:"api_key"`
}

type AgentConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

type LLMConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TimeoutMs   int     `mapstructure:"timeout_ms"`
}

type SttConfig struct {
	Model         string `mapstructure:"model"`
	EndpointingMs int    `mapstructure:"endpointing_ms"`
}

type TtsConfig struct {
	Model   string `mapstructure:"model"`
	Speaker string `mapstructure:"speaker"`
}

// reading config and initializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("No .env file found, reading from environment variables.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "voice-gateway")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8080)
	v.SetDefault("ENVIRONMENT", "development")

	v.SetDefault("DATABASE__DRIVER", "sqlite")
	v.SetDefault("DATABASE__DSN", "file:voice_gateway.db?cache=shared&_fk=1")
	v.SetDefault("DATABASE__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("DATABASE__MAX_IDLE_CONNECTION", 10)

	v.SetDefault("REDIS__ENABLED", false)
	v.SetDefault("REDIS__HOST", "localhost")
	v.SetDefault("REDIS__PORT", 6379)
	v.SetDefault("REDIS__PASSWORD", "")
	v.SetDefault("REDIS__DATABASE", 0)

	v.SetDefault("RECORDING__ENABLED", false)
	v.SetDefault("RECORDING__DIRECTORY", "recordings")

	v.SetDefault("ADMIN__API_KEY", "")

	v.SetDefault("AGENT__DEFAULT_LANGUAGE", "hi")

	v.SetDefault("LLM__MODEL", "gpt-4o-mini")
	v.SetDefault("LLM__TEMPERATURE", 0.3)
	v.SetDefault("LLM__MAX_TOKENS", 120)
	v.SetDefault("LLM__TIMEOUT_MS", 4000)

	v.SetDefault("STT__MODEL", "nova-2")
	v.SetDefault("STT__ENDPOINTING_MS", 300)

	v.SetDefault("TTS__MODEL", "bulbul:v2")
	v.SetDefault("TTS__SPEAKER", "anushka")
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// validating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
