package config

import (
	_ "embed"
	"fmt"
	"slices"
	"time"
)

// Frames are always 320x240 little-endian RGB565 rows, the panel must be addressed the same way
var requiredAddressOptions = []string{"horizontal_orientation", "colour_little_endian"}

//go:embed param_default.yaml
var ParamDefaultFile []byte

type ServerParam struct {
	PanelParam  PanelParam  `yaml:"panel"`
	MirrorParam MirrorParam `yaml:"mirror"`
	ApiParam    ApiParam    `yaml:"api"`
}

type PanelParam struct {
	SpiPort        string   `yaml:"spi_port"`
	SpiFrequency   int64    `yaml:"spi_frequency"`
	DataCommandPin string   `yaml:"data_command_pin"`
	ResetPin       string   `yaml:"reset_pin"`
	BacklightPin   string   `yaml:"backlight_pin"`
	MaxTransfer    int      `yaml:"max_transfer"`
	AddressOptions []string `yaml:"address_options"`
}

type MirrorParam struct {
	Framebuffer       string        `yaml:"framebuffer"`
	XDisplay          string        `yaml:"x_display"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	SleepPollInterval time.Duration `yaml:"sleep_poll_interval"`
	FrameInterval     time.Duration `yaml:"frame_interval"`
	CursorIdleFrames  int           `yaml:"cursor_idle_frames"`
	ConsoleCheck      bool          `yaml:"console_check"`
	SplashDuration    time.Duration `yaml:"splash_duration"`
	StopTimeout       time.Duration `yaml:"stop_timeout"`
}

type ApiParam struct {
	Enabled bool   `yaml:"enabled"`
	SslPort int64  `yaml:"ssl_port"`
	ApiKey  string `yaml:"api_key"`
}

// Validate checks the values that cannot be fixed later on by the devices themselves.
func (p *ServerParam) Validate() error {
	if p.PanelParam.SpiFrequency <= 0 {
		return fmt.Errorf("panel.spi_frequency must be positive, got %d", p.PanelParam.SpiFrequency)
	}
	if p.PanelParam.MaxTransfer <= 0 {
		return fmt.Errorf("panel.max_transfer must be positive, got %d", p.PanelParam.MaxTransfer)
	}
	for _, option := range requiredAddressOptions {
		if !slices.Contains(p.PanelParam.AddressOptions, option) {
			return fmt.Errorf("panel.address_options must contain %s", option)
		}
	}
	if p.MirrorParam.Framebuffer == "" {
		return fmt.Errorf("mirror.framebuffer is required")
	}
	if p.MirrorParam.TickInterval <= 0 {
		return fmt.Errorf("mirror.tick_interval must be positive, got %s", p.MirrorParam.TickInterval)
	}
	if p.MirrorParam.SleepPollInterval <= 0 {
		return fmt.Errorf("mirror.sleep_poll_interval must be positive, got %s", p.MirrorParam.SleepPollInterval)
	}
	if p.MirrorParam.FrameInterval < 0 {
		return fmt.Errorf("mirror.frame_interval cannot be negative")
	}
	if p.MirrorParam.CursorIdleFrames <= 0 {
		return fmt.Errorf("mirror.cursor_idle_frames must be positive, got %d", p.MirrorParam.CursorIdleFrames)
	}
	if p.MirrorParam.SplashDuration < 0 {
		return fmt.Errorf("mirror.splash_duration cannot be negative")
	}
	if p.MirrorParam.StopTimeout <= 0 {
		return fmt.Errorf("mirror.stop_timeout must be positive, got %s", p.MirrorParam.StopTimeout)
	}
	if p.ApiParam.Enabled && p.ApiParam.ApiKey == "" {
		return fmt.Errorf("api.api_key is required when the api is enabled")
	}
	return nil
}
