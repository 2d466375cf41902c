package probe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/karalabe/hid"
)

// DatabasePaths lists where the usb.ids database is commonly installed.
var DatabasePaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// Names maps vendor and product IDs to the names listed in a usb.ids
// database. The zero value is an empty table.
type Names struct {
	vendors  map[uint16]string
	products map[uint32]string // VID<<16 | PID
}

// LoadNames reads the first database found among paths, or DatabasePaths
// when none are given. If no database exists the table is empty.
func LoadNames(paths ...string) (*Names, error) {
	if len(paths) == 0 {
		paths = DatabasePaths
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		defer f.Close()
		n, err := ParseNames(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return n, nil
	}
	return &Names{}, nil
}

// ParseNames reads vendor and product lines in usb.ids format. Vendor lines
// are "vvvv  name"; product lines follow their vendor as "\tpppp  name".
// Class and other sections end the vendor list.
func ParseNames(r io.Reader) (*Names, error) {
	n := &Names{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
	}
	sc := bufio.NewScanner(r)
	vendor, inVendor := uint16(0), false
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		if line[0] == '\t' {
			if !inVendor || strings.HasPrefix(line, "\t\t") {
				continue
			}
			if id, name, ok := splitEntry(line[1:]); ok {
				n.products[uint32(vendor)<<16|uint32(id)] = name
			}
			continue
		}
		id, name, ok := splitEntry(line)
		if !ok {
			inVendor = false
			continue
		}
		vendor, inVendor = id, true
		n.vendors[id] = name
	}
	return n, sc.Err()
}

func splitEntry(line string) (uint16, string, bool) {
	if len(line) < 6 || line[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	return uint16(id), strings.TrimSpace(line[5:]), true
}

// Vendor returns the name of vid, or "" if unknown.
func (n *Names) Vendor(vid uint16) string { return n.vendors[vid] }

// Product returns the name of vid:pid, or "" if unknown.
func (n *Names) Product(vid, pid uint16) string {
	return n.products[uint32(vid)<<16|uint32(pid)]
}

// Describe labels an attached bridge. Strings reported by the device take
// precedence over the database.
func (n *Names) Describe(info hid.DeviceInfo) string {
	vendor, product := info.Manufacturer, info.Product
	if vendor == "" {
		vendor = n.Vendor(info.VendorID)
	}
	if product == "" {
		product = n.Product(info.VendorID, info.ProductID)
	}
	label := strings.TrimSpace(vendor + " " + product)
	if label == "" {
		label = fmt.Sprintf("%04x:%04x", info.VendorID, info.ProductID)
	}
	return label
}
