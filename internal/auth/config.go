package auth

import "fmt"

type Config struct {
	// JWTSecret is the HS256 key shared with the session service.
	JWTSecret string `mapstructure:"JWTSecret"`
	Issuer    string `mapstructure:"Issuer"`
	AdminRole string `mapstructure:"AdminRole"`
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWTSecret is required")
	}
	return nil
}
