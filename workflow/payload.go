package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// payloadTypes maps recorded type names back to Go types so checkpointed
// payloads of untyped executors decode into the type they were sent as.
var payloadTypes = struct {
	sync.RWMutex
	byName map[string]reflect.Type
}{byName: make(map[string]reflect.Type)}

func init() {
	for _, t := range []reflect.Type{
		reflect.TypeFor[bool](),
		reflect.TypeFor[string](),
		reflect.TypeFor[int](),
		reflect.TypeFor[int8](),
		reflect.TypeFor[int16](),
		reflect.TypeFor[int32](),
		reflect.TypeFor[int64](),
		reflect.TypeFor[uint](),
		reflect.TypeFor[uint8](),
		reflect.TypeFor[uint16](),
		reflect.TypeFor[uint32](),
		reflect.TypeFor[uint64](),
		reflect.TypeFor[float32](),
		reflect.TypeFor[float64](),
		reflect.TypeFor[[]byte](),
		reflect.TypeFor[[]any](),
		reflect.TypeFor[[]int](),
		reflect.TypeFor[[]string](),
		reflect.TypeFor[[]float64](),
		reflect.TypeFor[map[string]any](),
		reflect.TypeFor[map[string]string](),
		reflect.TypeFor[json.RawMessage](),
	} {
		registerPayloadType(t)
	}
}

// RegisterPayloadType makes T decodable when a checkpoint is resumed in a
// process that has not yet sent a T. Executors that declare their types
// (TypedExecutor, FuncExecutor) are registered by Build; untyped executors
// exchanging custom types should register them at init.
//
// Payloads are persisted as JSON, so only exported fields (or whatever a
// json.Marshaler writes) survive a checkpoint.
func RegisterPayloadType[T any]() {
	registerPayloadType(reflect.TypeFor[T]())
}

// registerPayloadType records t and reports whether it was new.
func registerPayloadType(t reflect.Type) bool {
	if t == nil || t.Kind() == reflect.Interface {
		return false
	}
	name := payloadTypeName(t)

	payloadTypes.Lock()
	defer payloadTypes.Unlock()
	if _, ok := payloadTypes.byName[name]; ok {
		return false
	}
	payloadTypes.byName[name] = t
	return true
}

func lookupPayloadType(name string) (reflect.Type, bool) {
	payloadTypes.RLock()
	defer payloadTypes.RUnlock()
	t, ok := payloadTypes.byName[name]
	return t, ok
}

// payloadTypeName is the name recorded in a checkpoint: import path plus
// name for named types, the type literal otherwise.
func payloadTypeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// lossyPayloadType reports whether JSON drops part of a t value: a struct
// with unexported fields and no custom marshaler.
func lossyPayloadType(t reflect.Type) bool {
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		return false
	}
	marshaler := reflect.TypeFor[json.Marshaler]()
	if t.Implements(marshaler) || reflect.PointerTo(base).Implements(marshaler) {
		return false
	}
	for i := 0; i < base.NumField(); i++ {
		if !base.Field(i).IsExported() {
			return true
		}
	}
	return false
}

// resolvePayloadType picks the type a persisted payload decodes into. A
// concrete declared type wins; otherwise the recorded type is used, and a
// recorded type this process does not know is an error. Records without a
// type name fall back to declared or generic JSON values.
func resolvePayloadType(declared reflect.Type, recorded string) (reflect.Type, error) {
	if declared != nil && declared.Kind() != reflect.Interface {
		return declared, nil
	}
	if recorded == "" {
		return declared, nil
	}
	t, ok := lookupPayloadType(recorded)
	if !ok {
		return nil, fmt.Errorf("payload type %s is not registered (see RegisterPayloadType)", recorded)
	}
	if declared != nil && !t.AssignableTo(declared) {
		return nil, fmt.Errorf("payload type %s is not assignable to %s", recorded, declared)
	}
	return t, nil
}
