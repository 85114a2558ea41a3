package config

import (
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "calendar-engine"
	keyringAPIKey  = "upscale_api_key"
)

// LoadAPIKey reads the upscaler key from the OS keyring
func LoadAPIKey() (string, error) {
	return keyring.Get(keyringService, keyringAPIKey)
}

// SaveAPIKey stores the upscaler key in the OS keyring. An empty key
// removes it.
func SaveAPIKey(key string) error {
	if key == "" {
		err := keyring.Delete(keyringService, keyringAPIKey)
		if err == keyring.ErrNotFound {
			return nil
		}
		return err
	}
	return keyring.Set(keyringService, keyringAPIKey, key)
}
