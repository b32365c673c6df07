// Package idmap records how the identifiers of every input were renamed by
// a merge, so that signals of the merged trace can be traced back to their
// origin.
package idmap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/highwayhash"
	"github.com/vmihailenco/msgpack/v5"

	"vcdmerge/internal/scope"
)

// Schema is the version of the on-disk format.
const Schema = 1

// ErrSchema is returned when reading a map written by an incompatible
// version.
var ErrSchema = errors.New("unsupported identifier map schema")

var fingerprintKey = []byte("vcdmerge/idmap:declaration-keys!")

// Map is the identifier map of one merge.
type Map struct {
	Schema  int       `msgpack:"schema"`
	Output  string    `msgpack:"output"`
	Created time.Time `msgpack:"created"`
	Inputs  []Input   `msgpack:"inputs"`
}

// Input lists the renamed declarations of one input.
type Input struct {
	Path        string  `msgpack:"path"`
	Label       string  `msgpack:"label"`
	Fingerprint uint64  `msgpack:"fingerprint"`
	Entries     []Entry `msgpack:"entries"`
}

// Entry is one declaration.
type Entry struct {
	Orig  string `msgpack:"orig"`
	New   string `msgpack:"new"`
	Scope string `msgpack:"scope"`
	Ref   string `msgpack:"ref"`
}

// Build collects the entries of tree. paths holds the input names by
// source index.
func Build(tree *scope.Tree, paths []string, output string) (*Map, error) {
	m := &Map{
		Schema:  Schema,
		Output:  output,
		Created: time.Now().UTC().Truncate(time.Second),
		Inputs:  make([]Input, len(tree.Inputs)),
	}
	slot := make(map[int]int, len(tree.Inputs))
	for i, in := range tree.Inputs {
		m.Inputs[i].Label = in.Label
		if in.Source < len(paths) {
			m.Inputs[i].Path = paths[in.Source]
		}
		slot[in.Source] = i
	}
	for _, sig := range tree.Signals {
		i, ok := slot[sig.Source]
		if !ok {
			return nil, fmt.Errorf("signal %s refers to unknown input %d", sig.Var.Ref, sig.Source)
		}
		m.Inputs[i].Entries = append(m.Inputs[i].Entries, Entry{
			Orig:  sig.Orig,
			New:   sig.Var.ID,
			Scope: strings.Join(sig.Path, "."),
			Ref:   sig.Var.Ref,
		})
	}
	for i := range m.Inputs {
		fp, err := Fingerprint(m.Inputs[i].Entries)
		if err != nil {
			return nil, err
		}
		m.Inputs[i].Fingerprint = fp
	}
	return m, nil
}

// Fingerprint hashes the original side of entries. Two inputs with the same
// declarations in the same order share a fingerprint whatever identifiers
// the merge assigned.
func Fingerprint(entries []Entry) (uint64, error) {
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		return 0, err
	}
	var n [4]byte
	for _, e := range entries {
		for _, field := range []string{e.Orig, e.Scope, e.Ref} {
			binary.LittleEndian.PutUint32(n[:], uint32(len(field)))
			h.Write(n[:])
			h.Write([]byte(field))
		}
	}
	return h.Sum64(), nil
}

// Lookup finds the entries carrying the merged identifier id.
func (m *Map) Lookup(id string) []Located {
	var out []Located
	for i := range m.Inputs {
		for _, e := range m.Inputs[i].Entries {
			if e.New == id {
				out = append(out, Located{Input: &m.Inputs[i], Entry: e})
			}
		}
	}
	return out
}

// Located is an entry together with its input.
type Located struct {
	Input *Input
	Entry Entry
}

// Write stores m at path, replacing any previous file atomically.
func Write(path string, m *Map) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".idmap-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	enc := msgpack.NewEncoder(f)
	if err = enc.Encode(m); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Read loads a map written by Write.
func Read(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m Map
	if err := msgpack.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.Schema != Schema {
		return nil, fmt.Errorf("%s: %w %d", path, ErrSchema, m.Schema)
	}
	return &m, nil
}
