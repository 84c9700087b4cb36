// internal/discovery/usb/database.go
package usb

import (
	"strconv"
	"strings"
)

// AdapterDatabase contains known USB to serial bridge chips for identification
type AdapterDatabase struct {
	vendors map[uint16]*VendorInfo
}

// VendorInfo contains vendor-specific information
type VendorInfo struct {
	Name     string
	products map[uint16]*ProductInfo
}

// ProductInfo describes one bridge chip
type ProductInfo struct {
	Chip string
	// NativeHandshake is false for bridges that do not wire up every modem line
	NativeHandshake bool
}

// NewAdapterDatabase creates and initializes the adapter database
func NewAdapterDatabase() *AdapterDatabase {
	db := &AdapterDatabase{
		vendors: make(map[uint16]*VendorInfo),
	}
	db.initializeDatabase()
	return db
}

// initializeDatabase populates the known adapters
func (db *AdapterDatabase) initializeDatabase() {
	// FTDI (0x0403)
	db.AddVendor(0x0403, &VendorInfo{Name: "Future Technology Devices International"})
	db.AddProduct(0x0403, 0x6001, &ProductInfo{Chip: "FT232R", NativeHandshake: true})
	db.AddProduct(0x0403, 0x6010, &ProductInfo{Chip: "FT2232H", NativeHandshake: true})
	db.AddProduct(0x0403, 0x6011, &ProductInfo{Chip: "FT4232H", NativeHandshake: true})
	db.AddProduct(0x0403, 0x6014, &ProductInfo{Chip: "FT232H", NativeHandshake: true})
	db.AddProduct(0x0403, 0x6015, &ProductInfo{Chip: "FT-X", NativeHandshake: true})

	// Silicon Labs (0x10C4)
	db.AddVendor(0x10C4, &VendorInfo{Name: "Silicon Laboratories"})
	db.AddProduct(0x10C4, 0xEA60, &ProductInfo{Chip: "CP210x", NativeHandshake: true})
	db.AddProduct(0x10C4, 0xEA70, &ProductInfo{Chip: "CP2105", NativeHandshake: true})

	// WCH (0x1A86)
	db.AddVendor(0x1A86, &VendorInfo{Name: "QinHeng Electronics"})
	db.AddProduct(0x1A86, 0x7523, &ProductInfo{Chip: "CH340"})
	db.AddProduct(0x1A86, 0x55D4, &ProductInfo{Chip: "CH9102", NativeHandshake: true})

	// Prolific (0x067B)
	db.AddVendor(0x067B, &VendorInfo{Name: "Prolific Technology"})
	db.AddProduct(0x067B, 0x2303, &ProductInfo{Chip: "PL2303", NativeHandshake: true})

	// Microchip (0x04D8)
	db.AddVendor(0x04D8, &VendorInfo{Name: "Microchip Technology"})
	db.AddProduct(0x04D8, 0x00DD, &ProductInfo{Chip: "MCP2221"})
}

// Identify looks up a port's hex VID and PID as reported by the serial
// enumerator. Vendor is empty for unknown vendors, chip is empty for unknown
// products of a known vendor.
func (db *AdapterDatabase) Identify(vid, pid string) (vendor string, product *ProductInfo) {
	vendorID, ok := parseID(vid)
	if !ok {
		return "", nil
	}
	info := db.vendors[vendorID]
	if info == nil {
		return "", nil
	}
	if productID, ok := parseID(pid); ok {
		product = info.products[productID]
	}
	return info.Name, product
}

// IsKnownVendor checks if a vendor ID is in the database
func (db *AdapterDatabase) IsKnownVendor(vendorID uint16) bool {
	_, exists := db.vendors[vendorID]
	return exists
}

// GetTotalProductCount returns total number of known products
func (db *AdapterDatabase) GetTotalProductCount() int {
	total := 0
	for _, vendor := range db.vendors {
		total += len(vendor.products)
	}
	return total
}

// AddVendor adds a new vendor to the database
func (db *AdapterDatabase) AddVendor(vendorID uint16, info *VendorInfo) {
	if info.products == nil {
		info.products = make(map[uint16]*ProductInfo)
	}
	db.vendors[vendorID] = info
}

// AddProduct adds a new product to an existing vendor
func (db *AdapterDatabase) AddProduct(vendorID, productID uint16, info *ProductInfo) {
	if vendor, exists := db.vendors[vendorID]; exists {
		vendor.products[productID] = info
	}
}

func parseID(s string) (uint16, bool) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(id), true
}
