/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads gateway settings from a file and the environment into typed sections.
package config

import "reflect"

// Config is a section of application settings that Loader can fill.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by sections whose keys live under a common prefix (e.g. "dispatch").
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// CallSetProviderDefaultsForFields calls SetProviderDefaults for every non-nil exported field of obj
// that implements Config. obj must be a pointer to a struct.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	forEachSection(obj, dp, func(c Config, cdp DataProvider) error {
		c.SetProviderDefaults(cdp)
		return nil
	})
}

// CallSetForFields calls Set for every non-nil exported field of obj that implements Config.
// The first error stops the iteration.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	return forEachSection(obj, dp, func(c Config, cdp DataProvider) error {
		return c.Set(cdp)
	})
}

func forEachSection(obj interface{}, dp DataProvider, fn func(c Config, cdp DataProvider) error) error {
	el := reflect.ValueOf(obj).Elem()
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		fv := el.Field(i)
		if fv.Kind() == reflect.Ptr && fv.IsNil() {
			continue
		}
		c, ok := fv.Interface().(Config)
		if !ok {
			continue
		}
		if err := fn(c, sectionProvider(c, dp)); err != nil {
			return err
		}
	}
	return nil
}

func sectionProvider(c Config, dp DataProvider) DataProvider {
	if kp, ok := c.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}
