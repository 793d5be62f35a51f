package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// NotifyConfig carries the tenant-overridable notification templates and
// billing defaults. Templates receive {{.Count}}, {{.Total}}, {{.NearestDue}}
// and {{.CustomerName}}.
type NotifyConfig struct {
	EmailSubject   string `mapstructure:"emailSubject"`
	EmailText      string `mapstructure:"emailText"`
	EmailHTML      string `mapstructure:"emailHtml"`
	WhatsappText   string `mapstructure:"whatsappText"`
	DefaultChannel string `mapstructure:"defaultChannel"`
}

func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{
		EmailSubject: "Voce possui {{.Count}} cobranca(s) em aberto",
		EmailText: "Ola {{.CustomerName}}, voce possui {{.Count}} cobranca(s) em aberto " +
			"totalizando R$ {{.Total}}. O vencimento mais proximo e {{.NearestDue}}.",
		EmailHTML: "<p>Ola <b>{{.CustomerName}}</b>,</p><p>Voce possui <b>{{.Count}}</b> " +
			"cobranca(s) em aberto totalizando <b>R$ {{.Total}}</b>. " +
			"O vencimento mais proximo e {{.NearestDue}}.</p>",
		WhatsappText: "Ola {{.CustomerName}}! Voce possui {{.Count}} cobranca(s) em aberto " +
			"totalizando R$ {{.Total}}. Vencimento mais proximo: {{.NearestDue}}.",
		DefaultChannel: "whatsapp",
	}
}

type NotifyConfigHolder struct {
	current atomic.Value // holds NotifyConfig
}

// NewNotifyConfigHolder loads notifications.yml, falling back to built-in
// defaults, and hot-reloads on file change.
func NewNotifyConfigHolder() (*NotifyConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("notifications")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/beneflow/config")
	v.AddConfigPath("/etc/beneflow")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BENEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultNotifyConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("notifications.emailSubject", defaults.EmailSubject)
		v.SetDefault("notifications.emailText", defaults.EmailText)
		v.SetDefault("notifications.emailHtml", defaults.EmailHTML)
		v.SetDefault("notifications.whatsappText", defaults.WhatsappText)
		v.SetDefault("notifications.defaultChannel", defaults.DefaultChannel)
	}

	var cfg NotifyConfig
	if err := v.UnmarshalKey("notifications", &cfg); err != nil {
		return nil, err
	}
	cfg = fillNotifyDefaults(cfg, defaults)
	if err := validateNotifyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &NotifyConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated NotifyConfig
		if err := v.UnmarshalKey("notifications", &updated); err != nil {
			log.Printf("[notify-config] reload failed: %v", err)
			return
		}
		updated = fillNotifyDefaults(updated, defaults)
		if err := validateNotifyConfig(updated); err != nil {
			log.Printf("[notify-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[notify-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *NotifyConfigHolder) Get() NotifyConfig {
	return h.current.Load().(NotifyConfig)
}

func fillNotifyDefaults(cfg, defaults NotifyConfig) NotifyConfig {
	if strings.TrimSpace(cfg.EmailSubject) == "" {
		cfg.EmailSubject = defaults.EmailSubject
	}
	if strings.TrimSpace(cfg.EmailText) == "" {
		cfg.EmailText = defaults.EmailText
	}
	if strings.TrimSpace(cfg.EmailHTML) == "" {
		cfg.EmailHTML = defaults.EmailHTML
	}
	if strings.TrimSpace(cfg.WhatsappText) == "" {
		cfg.WhatsappText = defaults.WhatsappText
	}
	if strings.TrimSpace(cfg.DefaultChannel) == "" {
		cfg.DefaultChannel = defaults.DefaultChannel
	}
	return cfg
}

func validateNotifyConfig(cfg NotifyConfig) error {
	switch strings.ToLower(strings.TrimSpace(cfg.DefaultChannel)) {
	case "email", "whatsapp":
		return nil
	default:
		return errors.New("notifications.defaultChannel must be email or whatsapp")
	}
}
