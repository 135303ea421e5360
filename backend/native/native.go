/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package native is a backend provider that serves calls with methods of registered Go values.
//
// A registered value is addressed by the name of its type. Its exported methods with the signature
//
//	func (s *Service) Method(ctx context.Context, call *gateway.Call) error
//
// become callable; other methods are ignored.
package native

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/acronis/go-rpcgate/backend"
	"github.com/acronis/go-rpcgate/gateway"
	"github.com/acronis/go-rpcgate/log"
)

var (
	typeOfError   = reflect.TypeOf((*error)(nil)).Elem()
	typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()
	typeOfCall    = reflect.TypeOf((*gateway.Call)(nil))
)

type service struct {
	rcvr    reflect.Value
	methods map[string]reflect.Method
}

// Provider implements gateway.Provider over registered Go values.
type Provider struct {
	logger log.FieldLogger

	mu       sync.RWMutex
	services map[string]*service
}

var _ gateway.Provider = (*Provider)(nil)

// New creates an empty Provider.
func New(logger log.FieldLogger) *Provider {
	return &Provider{logger: logger, services: make(map[string]*service)}
}

// Register makes the methods of rcvr callable under the name of its type.
func (p *Provider) Register(rcvr interface{}) error {
	typ := reflect.TypeOf(rcvr)
	if typ == nil {
		return errors.New("receiver is nil")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return p.RegisterName(typ.Name(), rcvr)
}

// RegisterName makes the methods of rcvr callable under the given class name.
func (p *Provider) RegisterName(class string, rcvr interface{}) error {
	if class == "" {
		return errors.New("class name is empty")
	}
	val := reflect.ValueOf(rcvr)
	if !val.IsValid() {
		return errors.Errorf("receiver of %s is nil", class)
	}
	typ := val.Type()

	svc := &service{rcvr: val, methods: make(map[string]reflect.Method)}
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if isCallable(m.Type) {
			svc.methods[m.Name] = m
		}
	}
	if len(svc.methods) == 0 {
		return errors.Errorf("%s has no methods of form func(context.Context, *gateway.Call) error", class)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.services[class]; exists {
		return errors.Errorf("class %s is already registered", class)
	}
	p.services[class] = svc
	p.logger.Debug("native backend class registered", log.String("class", class), log.Int("methods", len(svc.methods)))
	return nil
}

// Classes returns the registered class names, sorted.
func (p *Provider) Classes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.services))
	for name := range p.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Attempt implements gateway.Provider.
func (p *Provider) Attempt(ctx context.Context, call *gateway.Call) gateway.Outcome {
	env := call.Envelope()
	p.mu.RLock()
	svc, ok := p.services[env.Class()]
	p.mu.RUnlock()
	if !ok {
		return gateway.OutcomeNotFound
	}
	m, ok := svc.methods[env.Method()]
	if !ok {
		return gateway.OutcomeNotFound
	}

	results := m.Func.Call([]reflect.Value{svc.rcvr, reflect.ValueOf(ctx), reflect.ValueOf(call)})
	if errVal := results[0]; !errVal.IsNil() {
		return backend.Fail(call, errVal.Interface().(error))
	}
	return gateway.OutcomeSuccess
}

// isCallable checks the method type including the receiver.
func isCallable(mt reflect.Type) bool {
	return mt.NumIn() == 3 && mt.In(1) == typeOfContext && mt.In(2) == typeOfCall &&
		mt.NumOut() == 1 && mt.Out(0) == typeOfError
}
