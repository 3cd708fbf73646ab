package ingress

import "github.com/harunnryd/koe/internal/config"

func configWith(field, value string) config.IngressConfig {
	var cfg config.IngressConfig
	switch field {
	case "drain":
		cfg.DrainTimeout = value
	case "submit":
		cfg.InteractiveSubmitTimeout = value
	case "ttl":
		cfg.IdempotencyTTL = value
	}
	return cfg
}
