// Package registry keeps track of the images mounted by ddrmount.
//
// The registry is a JSON object stored in a per-user temporary directory,
// mapping slot numbers to the loop and mapper devices created for an image.
// A Registry holds an advisory lock on the directory from Open until Close,
// so the load, allocate, insert and save cycle of one command cannot
// interleave with another invocation.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/nace/ddrmount/internal/fault"
)

const (
	// DeviceName prefixes every mapper device created by ddrmount
	DeviceName = "ddrm"
	// DMLocation is where device-mapper exposes mapped devices
	DMLocation = "/dev/mapper/"

	// EnvDir overrides the registry directory
	EnvDir = "DDRMOUNT_REGISTRY_DIR"

	dirName  = "ddr-mount"
	fileName = "config.json"
	lockName = "config.lock"
)

// DefaultDir returns the registry directory used when none is configured
func DefaultDir() string {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), dirName)
}

// Mode selects whether a registry is written back on Close
type Mode int

const (
	// ReadOnly takes a shared lock and never writes the file
	ReadOnly Mode = iota
	// ReadWrite takes an exclusive lock and writes the file on Close
	ReadWrite
)

// Device is a copy of one registry record
type Device struct {
	Slot            uint32 `json:"slot"`
	ImageFile       string `json:"image_file"`        // absolute path of the image
	ImageMountPoint string `json:"image_mount_point"` // loop device the image is attached to
	DMMountPoint    string `json:"dm_mount_point"`    // mapper device name, without DMLocation
}

// MapperPath returns the full path of the mapper device
func (d Device) MapperPath() string {
	return DMLocation + d.DMMountPoint
}

type entry struct {
	ImageFile       string
	ImageMountPoint string
	DMMountPoint    string
}

// entryJSON is the on-disk shape of an entry
type entryJSON struct {
	ImageFile       json.RawMessage `json:"image_file"`
	ImageMountPoint string          `json:"image_mount_point"`
	DMMountPoint    string          `json:"dm_mount_point"`
}

// rawPath holds the bytes of an image path that is not valid UTF-8
type rawPath struct {
	Unix []int `json:"Unix"`
}

// MarshalJSON writes the image path as a plain string when it is valid
// UTF-8 and as {"Unix":[bytes]} otherwise, so every byte survives a reload.
func (e entry) MarshalJSON() ([]byte, error) {
	image, err := encodePath(e.ImageFile)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entryJSON{
		ImageFile:       image,
		ImageMountPoint: e.ImageMountPoint,
		DMMountPoint:    e.DMMountPoint,
	})
}

// UnmarshalJSON accepts both forms written by MarshalJSON
func (e *entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	image, err := decodePath(raw.ImageFile)
	if err != nil {
		return err
	}
	*e = entry{
		ImageFile:       image,
		ImageMountPoint: raw.ImageMountPoint,
		DMMountPoint:    raw.DMMountPoint,
	}
	return nil
}

func encodePath(path string) (json.RawMessage, error) {
	if utf8.ValidString(path) {
		return json.Marshal(path)
	}
	raw := rawPath{Unix: make([]int, len(path))}
	for i := 0; i < len(path); i++ {
		raw.Unix[i] = int(path[i])
	}
	return json.Marshal(raw)
}

func decodePath(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var path string
		if err := json.Unmarshal(data, &path); err != nil {
			return "", err
		}
		return path, nil
	}

	var raw rawPath
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("image_file: %w", err)
	}
	path := make([]byte, len(raw.Unix))
	for i, b := range raw.Unix {
		if b < 0 || b > 0xff {
			return "", fmt.Errorf("image_file: byte %d out of range", b)
		}
		path[i] = byte(b)
	}
	return string(path), nil
}

// Registry is the in-memory copy of the registry file
type Registry struct {
	dir     string
	mode    Mode
	lock    *fileLock
	entries map[uint32]entry
	closed  bool
}

// Open locks and loads the registry in dir. A missing or empty registry
// file is an empty registry.
//
// ReadWrite creates dir if needed. ReadOnly never creates anything; when
// the lock file is missing or cannot be opened by the caller, the registry
// is loaded without a lock.
func Open(dir string, mode Mode) (*Registry, error) {
	if mode == ReadWrite {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fault.New(fault.Config, "Unable to create configuration directory %s: %w", dir, err)
		}
	}

	lock, err := acquire(filepath.Join(dir, lockName), mode == ReadWrite)
	if err != nil {
		unlocked := mode == ReadOnly &&
			(errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission))
		if !unlocked {
			return nil, fault.New(fault.Config, "Unable to lock configuration: %w", err)
		}
		lock = nil
	}

	r := &Registry{
		dir:     dir,
		mode:    mode,
		lock:    lock,
		entries: make(map[uint32]entry),
	}
	if err := r.load(); err != nil {
		_ = lock.release()
		return nil, err
	}

	return r, nil
}

// Path returns the location of the registry file
func (r *Registry) Path() string {
	return filepath.Join(r.dir, fileName)
}

func (r *Registry) load() error {
	file, err := os.Open(r.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fault.New(fault.Config, "Unable to open configuration %s: %w", r.Path(), err)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(file); err != nil {
		return fault.New(fault.Config, "Unable to read configuration %s: %w", r.Path(), err)
	}
	if len(bytes.TrimSpace(buf.Bytes())) == 0 {
		return nil
	}

	var raw map[string]entry
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		return fault.New(fault.Config, "Unable to parse configuration %s: %w", r.Path(), err)
	}
	for key, e := range raw {
		slot, err := strconv.ParseUint(key, 10, 32)
		if err != nil || slot == 0 {
			return fault.New(fault.Config, "Unable to parse configuration %s: invalid slot %q", r.Path(), key)
		}
		r.entries[uint32(slot)] = e
	}

	return nil
}

// AllocateSlot returns the lowest slot, starting at 1, that has no record.
// The slot stays free only as long as the registry is held open.
func (r *Registry) AllocateSlot() uint32 {
	slot := uint32(1)
	for {
		if _, ok := r.entries[slot]; !ok {
			return slot
		}
		slot++
	}
}

// Insert stores a record under slot, replacing any previous one
func (r *Registry) Insert(slot uint32, imageFile, imageMountPoint, dmMountPoint string) {
	r.entries[slot] = entry{
		ImageFile:       imageFile,
		ImageMountPoint: imageMountPoint,
		DMMountPoint:    dmMountPoint,
	}
}

// Remove deletes the record under slot. A missing record means the
// registry changed under the caller and is reported as a config error.
func (r *Registry) Remove(slot uint32) error {
	if _, ok := r.entries[slot]; !ok {
		return fault.New(fault.Config, "Unable to remove device %s%d: not in configuration", DeviceName, slot)
	}
	delete(r.entries, slot)
	return nil
}

// Len returns the number of records
func (r *Registry) Len() int {
	return len(r.entries)
}

// All yields a copy of every record in ascending slot order. Each call
// starts a new pass over the registry.
func (r *Registry) All() iter.Seq[Device] {
	return func(yield func(Device) bool) {
		for _, slot := range r.slots() {
			e, ok := r.entries[slot]
			if !ok {
				continue
			}
			if !yield(e.device(slot)) {
				return
			}
		}
	}
}

// Devices returns a snapshot of every record in ascending slot order
func (r *Registry) Devices() []Device {
	res := make([]Device, 0, len(r.entries))
	for d := range r.All() {
		res = append(res, d)
	}
	return res
}

// Lookup finds the record of a mapper device, given either its name
// (ddrm1) or its path (/dev/mapper/ddrm1).
func (r *Registry) Lookup(name string) (Device, bool) {
	name = strings.TrimPrefix(name, DMLocation)
	for d := range r.All() {
		if d.DMMountPoint == name {
			return d, true
		}
	}
	return Device{}, false
}

// Save writes the whole registry, replacing the file atomically
func (r *Registry) Save() error {
	if r.mode != ReadWrite {
		return fault.New(fault.Config, "Unable to write configuration: opened read-only")
	}

	data, err := r.marshal()
	if err != nil {
		return fault.New(fault.Config, "Unable to encode configuration: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, fileName+".*")
	if err != nil {
		return fault.New(fault.Config, "Unable to write configuration: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fault.New(fault.Config, "Unable to write configuration: %w", err)
	}
	if err := tmp.Chmod(0o664); err != nil {
		tmp.Close()
		return fault.New(fault.Config, "Unable to write configuration: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fault.New(fault.Config, "Unable to write configuration: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fault.New(fault.Config, "Unable to write configuration: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.Path()); err != nil {
		return fault.New(fault.Config, "Unable to write configuration: %w", err)
	}

	return nil
}

// Close writes a read-write registry back and releases the lock. It is
// meant to be deferred right after Open so the write happens on every
// exit path. Calling Close more than once is a no-op.
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.mode == ReadWrite {
		err = r.Save()
	}
	if lerr := r.lock.release(); lerr != nil && err == nil {
		err = fault.New(fault.Config, "Unable to unlock configuration: %w", lerr)
	}
	return err
}

// marshal renders the registry as a JSON object with slots in ascending
// numeric order.
func (r *Registry) marshal() ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, slot := range r.slots() {
		if i > 0 {
			compact.WriteByte(',')
		}
		value, err := json.Marshal(r.entries[slot])
		if err != nil {
			return nil, fmt.Errorf("encode slot %d: %w", slot, err)
		}
		fmt.Fprintf(&compact, `"%d":`, slot)
		compact.Write(value)
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func (r *Registry) slots() []uint32 {
	slots := maps.Keys(r.entries)
	slices.Sort(slots)
	return slots
}

func (e entry) device(slot uint32) Device {
	return Device{
		Slot:            slot,
		ImageFile:       e.ImageFile,
		ImageMountPoint: e.ImageMountPoint,
		DMMountPoint:    e.DMMountPoint,
	}
}
