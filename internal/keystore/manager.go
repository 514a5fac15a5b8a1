// Package keystore provides the keys manager used by the decrypt tool
package keystore

import (
	"crypto"
	"fmt"
)

// Key is a named piece of key material held by a Manager. Exactly one of
// Private or Secret is set.
type Key struct {
	// Name is the symbolic key name, by convention the key file path.
	Name string

	// Private is an asymmetric private key used to unwrap an
	// xenc:EncryptedKey.
	Private crypto.Signer

	// Secret is raw symmetric key material used directly as the content
	// encryption key.
	Secret []byte
}

// Manager maps symbolic key names to loaded key material.
//
// A ds:KeyName in an encrypted document is resolved against the registered
// names. The command-line tools load exactly one key, so Default covers the
// common case of documents that carry no KeyName at all.
type Manager struct {
	names []string
	keys  map[string]*Key
}

// NewManager creates an empty keys manager
func NewManager() *Manager {
	return &Manager{keys: make(map[string]*Key)}
}

// AddKeyFile loads the key at path and registers it under the path itself.
// The file may hold a PEM private key or raw/PEM symmetric key material.
func (m *Manager) AddKeyFile(path string) error {
	if key, err := LoadPrivateKey(path); err == nil {
		return m.Add(&Key{Name: path, Private: key})
	}

	secret, err := LoadSymmetricKey(path)
	if err != nil {
		return err
	}
	return m.Add(&Key{Name: path, Secret: secret})
}

// Add registers a key under its name
func (m *Manager) Add(key *Key) error {
	if key.Name == "" {
		return fmt.Errorf("key name is required")
	}
	if key.Private == nil && len(key.Secret) == 0 {
		return fmt.Errorf("key %q has no key material", key.Name)
	}
	if _, exists := m.keys[key.Name]; exists {
		return fmt.Errorf("key %q already registered", key.Name)
	}
	m.names = append(m.names, key.Name)
	m.keys[key.Name] = key
	return nil
}

// Resolve returns the key registered under name
func (m *Manager) Resolve(name string) (*Key, error) {
	key, ok := m.keys[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, name)
	}
	return key, nil
}

// Default returns the first registered key. Documents without a ds:KeyName
// are decrypted with it.
func (m *Manager) Default() (*Key, error) {
	if len(m.names) == 0 {
		return nil, fmt.Errorf("%w: no keys registered", ErrKeyNotFound)
	}
	return m.keys[m.names[0]], nil
}

// Len returns the number of registered keys
func (m *Manager) Len() int {
	return len(m.names)
}

// Close drops all registered keys and wipes symmetric key material.
func (m *Manager) Close() error {
	for _, key := range m.keys {
		for i := range key.Secret {
			key.Secret[i] = 0
		}
	}
	m.names = nil
	m.keys = make(map[string]*Key)
	return nil
}
