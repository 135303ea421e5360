/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ssgreg/logf"
)

// DefaultMasks hides login passwords and session tokens wherever a call payload ends up in a log line.
var DefaultMasks = []MaskingRuleConfig{
	{Field: "Authorization", Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader}},
	{Field: "password", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
	{Field: "_uuid", Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded}},
}

type mask struct {
	re   *regexp.Regexp
	repl string
}

type fieldMasker struct {
	field string // lowercase
	masks []mask
}

// Masker replaces secrets in strings according to a set of rules.
type Masker struct {
	fields []fieldMasker
}

// NewMasker compiles the rules. It panics on an invalid regular expression, like regexp.MustCompile.
func NewMasker(rules []MaskingRuleConfig) *Masker {
	m := &Masker{fields: make([]fieldMasker, 0, len(rules))}
	for _, rule := range rules {
		fm := fieldMasker{field: strings.ToLower(rule.Field)}
		for _, mc := range rule.Masks {
			fm.masks = append(fm.masks, mask{regexp.MustCompile(mc.RegExp), mc.Mask})
		}
		q := regexp.QuoteMeta(rule.Field)
		for _, format := range rule.Formats {
			switch format {
			case FieldMaskFormatHTTPHeader:
				fm.masks = append(fm.masks, mask{regexp.MustCompile(`(?i)` + q + `: .+?\r\n`), rule.Field + ": ***\r\n"})
			case FieldMaskFormatJSON:
				fm.masks = append(fm.masks, mask{regexp.MustCompile(`(?i)"` + q + `"\s*:\s*".*?[^\\]"`), `"` + rule.Field + `": "***"`})
			case FieldMaskFormatURLEncoded:
				fm.masks = append(fm.masks, mask{regexp.MustCompile(`(?i)\b` + q + `\s*=\s*[^&\s]+`), rule.Field + "=***"})
			}
		}
		m.fields = append(m.fields, fm)
	}
	return m
}

// Mask returns s with all matched secrets replaced.
func (m *Masker) Mask(s string) string {
	lower := strings.ToLower(s)
	for _, fm := range m.fields {
		if !strings.Contains(lower, fm.field) {
			continue
		}
		for _, mk := range fm.masks {
			s = mk.re.ReplaceAllString(s, mk.repl)
		}
	}
	return s
}

// StringMasker masks secrets in a string.
type StringMasker interface {
	Mask(s string) string
}

// MaskingLogger masks secrets in messages, string fields and error fields before passing them on.
type MaskingLogger struct {
	log    FieldLogger
	masker StringMasker
}

// NewMaskingLogger wraps l.
func NewMaskingLogger(l FieldLogger, m StringMasker) FieldLogger {
	return MaskingLogger{l, m}
}

func (l MaskingLogger) With(fs ...Field) FieldLogger {
	return MaskingLogger{l.log.With(l.maskFields(fs)...), l.masker}
}

func (l MaskingLogger) Debug(text string, fs ...Field) {
	l.log.Debug(l.masker.Mask(text), l.maskFields(fs)...)
}

func (l MaskingLogger) Info(text string, fs ...Field) {
	l.log.Info(l.masker.Mask(text), l.maskFields(fs)...)
}

func (l MaskingLogger) Warn(text string, fs ...Field) {
	l.log.Warn(l.masker.Mask(text), l.maskFields(fs)...)
}

func (l MaskingLogger) Error(text string, fs ...Field) {
	l.log.Error(l.masker.Mask(text), l.maskFields(fs)...)
}

func (l MaskingLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l MaskingLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l MaskingLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l MaskingLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

func (l MaskingLogger) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.log.AtLevel(level, func(logFunc LogFunc) {
		fn(func(msg string, fs ...Field) {
			logFunc(l.masker.Mask(msg), l.maskFields(fs)...)
		})
	})
}

func (l MaskingLogger) WithLevel(level Level) FieldLogger {
	return MaskingLogger{l.log.WithLevel(level), l.masker}
}

// maskFields returns fields unchanged (same slice) when nothing had to be masked.
// Fields of arbitrary types (logf.FieldTypeAny) are not inspected.
func (l MaskingLogger) maskFields(fields []Field) []Field {
	var res []Field
	for i, field := range fields {
		var masked Field
		switch field.Type {
		case logf.FieldTypeBytesToString:
			s := string(field.Bytes)
			ms := l.masker.Mask(s)
			if ms == s {
				continue
			}
			masked = String(field.Key, ms)
		case logf.FieldTypeError:
			err, ok := field.Any.(error)
			if !ok || err == nil {
				continue
			}
			s := err.Error()
			ms := l.masker.Mask(s)
			if ms == s {
				continue
			}
			masked = NamedError(field.Key, errors.New(ms))
		default:
			continue
		}
		if res == nil {
			res = make([]Field, len(fields))
			copy(res, fields)
		}
		res[i] = masked
	}
	if res == nil {
		return fields
	}
	return res
}
