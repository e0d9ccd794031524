package singstorage

import "github.com/HKUST-SING/singstorage-go/internal/errs"

// storagePropertySchema lists every recognized property key and its
// allowed values, mirroring the reference implementation's single
// "encoding" option. Additional keys can be added here without
// touching Set's validation logic.
var storagePropertySchema = map[string]map[string]bool{
	"encoding": {"utf-8": true},
}

// StorageProperties is a per-session options table restricted to
// storagePropertySchema; Set rejects unknown keys or values outside a
// known key's allowed set.
type StorageProperties struct {
	values map[string]string
}

// NewStorageProperties returns an empty properties table.
func NewStorageProperties() *StorageProperties {
	return &StorageProperties{values: make(map[string]string)}
}

// Set validates key/value against the schema and, on success, stores
// it. Returns *errors.PropertyError on an unknown key or an
// out-of-schema value.
func (p *StorageProperties) Set(key, value string) error {
	allowed, knownKey := storagePropertySchema[key]
	if !knownKey {
		return &errs.PropertyError{Op: "set_property", Key: key, Value: value}
	}
	if !allowed[value] {
		return &errs.PropertyError{Op: "set_property", Key: key, Value: value}
	}
	p.values[key] = value
	return nil
}

// Get returns the current value of key and whether it has been set.
func (p *StorageProperties) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}
