/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// BytesCount is a size in bytes that may be written either as an integer or
// as a human-readable string ("10M", "1GB", or the k8s-style "512Ki").
type BytesCount uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BytesCount) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return fmt.Errorf("negative value is not allowed: %d", num)
		}
		*b = BytesCount(num)
		return nil
	}
	v := s
	for _, k8sSuffix := range [...]string{"Ki", "Mi", "Gi", "Ti", "Pi", "Ei"} {
		if strings.HasSuffix(v, k8sSuffix) {
			v = v[:len(v)-1]
			break
		}
	}
	num, err := bytefmt.ToBytes(v)
	if err != nil {
		return fmt.Errorf("invalid bytes format (%s): %w", s, err)
	}
	*b = BytesCount(num)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *BytesCount) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid bytes format: %w", err)
	}
	return b.UnmarshalText([]byte(s))
}

// String returns the human-readable representation ("10M").
func (b BytesCount) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// MarshalText implements encoding.TextMarshaler.
func (b BytesCount) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}
