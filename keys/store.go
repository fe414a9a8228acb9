package keys

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps hex-encoded signer seeds on the local filesystem.
//
// Layout:
//
//	<dir>/<name>/root.key
//	<dir>/<name>/roles/<role>.key
type KeyStore struct {
	Dir string
}

// Entry lists one root key and the role keys derived from it.
type Entry struct {
	Name  string
	Roles []string
}

var ErrNoSigner = errors.New("keys: no signer configured")

// DefaultDir returns ~/.taskledger/keys.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".taskledger", "keys"), nil
}

// Open returns a KeyStore rooted at dir, or at DefaultDir when dir is empty.
func Open(dir string) (*KeyStore, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &KeyStore{Dir: dir}, nil
}

// CheckName allows [A-Za-z0-9_-]+ so names are safe path segments.
func CheckName(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("invalid character %q in %q", r, name)
		}
	}
	return nil
}

// ParseSeedHex decodes a 32-byte seed, with or without a 0x prefix.
func ParseSeedHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(seed))
	}
	return seed, nil
}

// NewSeed returns a fresh random seed.
func NewSeed() ([]byte, error) {
	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

func (ks *KeyStore) rootPath(name string) string {
	return filepath.Join(ks.Dir, name, "root.key")
}

func (ks *KeyStore) rolePath(name, role string) string {
	return filepath.Join(ks.Dir, name, "roles", role+".key")
}

// Init writes a root seed for name. A nil seed generates one.
func (ks *KeyStore) Init(name string, seed []byte, overwrite bool) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	if seed == nil {
		var err error
		if seed, err = NewSeed(); err != nil {
			return "", err
		}
	}
	path := ks.rootPath(name)
	return path, writeSeed(path, seed, overwrite)
}

// Derive writes the role seed derived from name's root seed.
func (ks *KeyStore) Derive(name, role string, overwrite bool) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	root, err := readSeed(ks.rootPath(name))
	if err != nil {
		return "", err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return "", err
	}
	path := ks.rolePath(name, role)
	return path, writeSeed(path, seed, overwrite)
}

// Seed loads the root seed for name, or the role seed when role is set.
func (ks *KeyStore) Seed(name, role string) ([]byte, error) {
	if name == "" {
		return nil, ErrNoSigner
	}
	if err := CheckName(name); err != nil {
		return nil, err
	}
	if role == "" {
		return readSeed(ks.rootPath(name))
	}
	if err := CheckName(role); err != nil {
		return nil, err
	}
	return readSeed(ks.rolePath(name, role))
}

// LoadSigner resolves a signer from an explicit seed file first, then from
// the store by name and role.
func (ks *KeyStore) LoadSigner(scheme Scheme, seedFile, name, role string) (Signer, error) {
	var (
		seed []byte
		err  error
	)
	if seedFile != "" {
		seed, err = readSeed(seedFile)
	} else {
		seed, err = ks.Seed(name, role)
	}
	if err != nil {
		return nil, err
	}
	return NewSigner(scheme, seed)
}

// List returns every root key and its derived roles, sorted by name.
func (ks *KeyStore) List() ([]Entry, error) {
	dirs, err := os.ReadDir(ks.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		e := Entry{Name: d.Name()}
		files, rerr := os.ReadDir(filepath.Join(ks.Dir, d.Name(), "roles"))
		if rerr == nil {
			for _, f := range files {
				if !f.IsDir() && strings.HasSuffix(f.Name(), ".key") {
					e.Roles = append(e.Roles, strings.TrimSuffix(f.Name(), ".key"))
				}
			}
			sort.Strings(e.Roles)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return f.Close()
}

func readSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}
