package service

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/unithub/unithub-ble/pkg/codec"
	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

// Records and patches bind their fields to schema characteristics with a `gatt:"<id>"` tag. The
// binding is resolved once per type.

var fieldCache sync.Map // reflect.Type -> map[protocol.CharacteristicID][]int

func fieldsOf(t reflect.Type) map[protocol.CharacteristicID][]int {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(map[protocol.CharacteristicID][]int)
	}
	fields := make(map[protocol.CharacteristicID][]int)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, ok := f.Tag.Lookup("gatt")
		if !ok || tag == "" || tag == "-" {
			continue
		}
		if id, err := protocol.NormalizeID(tag); err == nil {
			fields[protocol.CharacteristicID(id)] = f.Index
		}
	}
	fieldCache.Store(t, fields)
	return fields
}

// bind returns the tagged fields of v, which must be a struct or a pointer to one.
func bind(v any) (reflect.Value, map[protocol.CharacteristicID][]int, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, nil, fmt.Errorf("%w: nil %T", protocol.ErrInvalidValue, v)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, nil, fmt.Errorf("%w: %T is not a record", protocol.ErrInvalidValue, v)
	}
	return rv, fieldsOf(rv.Type()), nil
}

// supplied returns the value held by a field of a record or patch, reporting false for nil
// pointers and nil slices, which mark an omitted field.
func supplied(f reflect.Value) (reflect.Value, bool) {
	switch f.Kind() {
	case reflect.Pointer:
		if f.IsNil() {
			return reflect.Value{}, false
		}
		return f.Elem(), true
	case reflect.Slice:
		if f.IsNil() {
			return reflect.Value{}, false
		}
	}
	return f, true
}

func assign(field reflect.Value, v any) error {
	rv := reflect.ValueOf(v)
	target := field.Type()
	if field.Kind() == reflect.Pointer && rv.Type() != target {
		target = target.Elem()
	}
	switch {
	case rv.Type().AssignableTo(target):
	case rv.Type().ConvertibleTo(target):
		rv = rv.Convert(target)
	default:
		return fmt.Errorf("cannot store %T in a field of type %s", v, field.Type())
	}
	if target != field.Type() {
		ptr := reflect.New(target)
		ptr.Elem().Set(rv)
		rv = ptr
	}
	field.Set(rv)
	return nil
}

// decode converts a characteristic payload into its domain value. Enumerations decode to their
// symbol; assign converts the symbol to the field's named string type.
func decode(c protocol.Characteristic, raw []byte) (any, error) {
	switch c.Encoding {
	case protocol.EncodingRaw:
		return slices.Clone(raw), nil
	case protocol.EncodingUint8:
		return codec.DecodeUint8(raw)
	case protocol.EncodingUint16:
		return codec.DecodeUint16(raw)
	case protocol.EncodingUint32:
		return codec.DecodeUint32(raw)
	case protocol.EncodingUTF8:
		return codec.DecodeString(raw)
	case protocol.EncodingHex:
		if c.Size > 0 {
			if len(raw) < c.Size {
				return nil, fmt.Errorf("%w: expected %d bytes, got %d", protocol.ErrMalformedPayload, c.Size, len(raw))
			}
			raw = raw[:c.Size]
		}
		return codec.DecodeHex(raw)
	case protocol.EncodingBool:
		return codec.DecodeBool(raw)
	case protocol.EncodingEnum8:
		return codec.DecodeEnum8(raw, c.Symbols)
	case protocol.EncodingFlags8:
		v, err := codec.DecodeUint8(raw)
		return device.AlarmFlags(v), err
	case protocol.EncodingSearchWindow:
		v, err := codec.DecodeUint32(raw)
		if err != nil {
			return nil, err
		}
		w := device.UnpackSearchWindow(v)
		if !w.Valid() {
			return nil, fmt.Errorf("%w: search window %#08x is not a valid time range", protocol.ErrMalformedPayload, v)
		}
		return w, nil
	case protocol.EncodingAlarmEvents:
		return device.DecodeAlarmEvents(raw)
	case protocol.EncodingLogEntries:
		return device.DecodeLogEntries(raw)
	case protocol.EncodingLogFiles:
		return device.DecodeLogFiles(raw)
	}
	return nil, fmt.Errorf("%w: unsupported encoding %s", protocol.ErrMalformedPayload, c.Encoding)
}

func invalid(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", protocol.ErrInvalidValue, fmt.Sprintf(format, a...))
}

func unsigned(v reflect.Value) (uint64, error) {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Int() < 0 {
			return 0, invalid("%d is negative", v.Int())
		}
		return uint64(v.Int()), nil
	}
	return 0, invalid("%s is not an integer", v.Type())
}

// encode converts a field value into the payload for c, validating it first.
func encode(c protocol.Characteristic, v reflect.Value) ([]byte, error) {
	switch c.Encoding {
	case protocol.EncodingRaw:
		if v.Kind() != reflect.Slice || v.Type().Elem().Kind() != reflect.Uint8 {
			return nil, invalid("%s is not a byte slice", v.Type())
		}
		if v.Len() == 0 {
			return nil, invalid("empty payload")
		}
		return slices.Clone(v.Bytes()), nil
	case protocol.EncodingUint8, protocol.EncodingFlags8:
		n, err := unsigned(v)
		if err != nil {
			return nil, err
		}
		return codec.EncodeUint(n, 1)
	case protocol.EncodingUint16:
		n, err := unsigned(v)
		if err != nil {
			return nil, err
		}
		return codec.EncodeUint(n, 2)
	case protocol.EncodingUint32:
		n, err := unsigned(v)
		if err != nil {
			return nil, err
		}
		return codec.EncodeUint(n, 4)
	case protocol.EncodingUTF8:
		if v.Kind() != reflect.String {
			return nil, invalid("%s is not a string", v.Type())
		}
		return codec.EncodeString(v.String()), nil
	case protocol.EncodingHex:
		if v.Kind() != reflect.String {
			return nil, invalid("%s is not a hex string", v.Type())
		}
		s, err := codec.NormalizeHex(v.String(), c.Size)
		if err != nil {
			return nil, err
		}
		return codec.EncodeHex(s)
	case protocol.EncodingBool:
		if v.Kind() != reflect.Bool {
			return nil, invalid("%s is not a bool", v.Type())
		}
		return codec.EncodeBool(v.Bool()), nil
	case protocol.EncodingEnum8:
		if v.Kind() != reflect.String {
			return nil, invalid("%s is not an enumeration", v.Type())
		}
		return codec.EncodeEnum8(v.String(), c.Symbols)
	case protocol.EncodingSearchWindow:
		w, ok := v.Interface().(device.SearchWindow)
		if !ok {
			return nil, invalid("%s is not a search window", v.Type())
		}
		if !w.Valid() {
			return nil, invalid("search window %02d:%02d-%02d:%02d is not a valid time range",
				w.StartHour, w.StartMinute, w.EndHour, w.EndMinute)
		}
		return codec.EncodeUint32(w.Pack()), nil
	}
	return nil, invalid("%s values cannot be written", c.Encoding)
}
