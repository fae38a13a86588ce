/*
Package tmx implements a reader for maps saved by the Tiled map editor in its
TMX format.

Only as much of the format is decoded as is needed to pull a rectangular grid
of tile identifiers out of a tile layer. Object groups, image layers and
groups are recognised so that they keep their position in the layer order but
their contents are ignored. Infinite (chunked) maps are not supported.
*/
package tmx

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Flags stored in the upper bits of a GID.
const (
	FlipHorizontal = 0x80000000
	FlipVertical   = 0x40000000
	FlipDiagonal   = 0x20000000
	RotateHex      = 0x10000000
	flipMask       = FlipHorizontal | FlipVertical | FlipDiagonal | RotateHex
)

var (
	// ErrSourceUnreadable is returned when the file cannot be opened or
	// is not a well-formed TMX document.
	ErrSourceUnreadable = errors.New("tmx: source unreadable")
	// ErrNotTileLayer is returned when a grid is requested from a layer
	// that is not a tile layer.
	ErrNotTileLayer = errors.New("tmx: not a tile layer")
	// ErrLayerNotFound is returned for an out of range layer index or an
	// unknown layer name.
	ErrLayerNotFound = errors.New("tmx: layer not found")

	ErrUnknownEncoding    = errors.New("tmx: invalid encoding scheme")
	ErrUnknownCompression = errors.New("tmx: invalid compression method")
	ErrInvalidDataLength  = errors.New("tmx: invalid decoded data length")
	ErrInvalidGID         = errors.New("tmx: invalid GID")
	ErrInfiniteMap        = errors.New("tmx: infinite maps are not supported")
)

// GID is a global tile identifier as stored in layer data, including flip
// flags.
type GID uint32

// Kind identifies the type of a layer.
type Kind int

const (
	KindTile Kind = iota
	KindObject
	KindImage
	KindGroup
)

var kindNames = map[string]Kind{
	"layer":       KindTile,
	"objectgroup": KindObject,
	"imagelayer":  KindImage,
	"group":       KindGroup,
}

func (k Kind) String() string {
	switch k {
	case KindTile:
		return "tile layer"
	case KindObject:
		return "object group"
	case KindImage:
		return "image layer"
	case KindGroup:
		return "group"
	}
	return "unknown"
}

// Map is a decoded TMX map. Treat it as read-only.
type Map struct {
	Orientation string
	Width       int
	Height      int
	TileWidth   int
	TileHeight  int
	Tilesets    []Tileset // Sorted by FirstGID
	Layers      []Layer   // In document order
}

// Tileset is a reference to a tileset used by the map.
type Tileset struct {
	FirstGID   GID
	Name       string
	Source     string
	TileWidth  int
	TileHeight int
	TileCount  int
}

// Layer is any of the layer-like elements of a map. GIDs is only populated
// for tile layers.
type Layer struct {
	Kind   Kind
	Name   string
	Width  int
	Height int
	GIDs   []GID // Row-major, Width*Height entries
}

type xmlMap struct {
	XMLName     xml.Name
	Orientation string       `xml:"orientation,attr"`
	Width       int          `xml:"width,attr"`
	Height      int          `xml:"height,attr"`
	TileWidth   int          `xml:"tilewidth,attr"`
	TileHeight  int          `xml:"tileheight,attr"`
	Infinite    int          `xml:"infinite,attr"`
	Tilesets    []xmlTileset `xml:"tileset"`
	Children    []xmlLayer   `xml:",any"`
}

type xmlTileset struct {
	FirstGID   GID    `xml:"firstgid,attr"`
	Source     string `xml:"source,attr"`
	Name       string `xml:"name,attr"`
	TileWidth  int    `xml:"tilewidth,attr"`
	TileHeight int    `xml:"tileheight,attr"`
	TileCount  int    `xml:"tilecount,attr"`
}

type xmlLayer struct {
	XMLName xml.Name
	Name    string   `xml:"name,attr"`
	Width   int      `xml:"width,attr"`
	Height  int      `xml:"height,attr"`
	Data    *xmlData `xml:"data"`
}

type xmlData struct {
	Encoding    string    `xml:"encoding,attr"`
	Compression string    `xml:"compression,attr"`
	Tiles       []xmlTile `xml:"tile"`
	Raw         []byte    `xml:",chardata"`
}

type xmlTile struct {
	GID GID `xml:"gid,attr"`
}

func (d *xmlData) decodeBase64() ([]GID, error) {
	var r io.Reader = base64.NewDecoder(base64.StdEncoding, bytes.NewReader(bytes.TrimSpace(d.Raw)))

	switch d.Compression {
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case "zlib":
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case "":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, d.Compression)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, ErrInvalidDataLength
	}

	gids := make([]GID, len(b)/4)
	for i := range gids {
		gids[i] = GID(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return gids, nil
}

func (d *xmlData) decodeCSV() ([]GID, error) {
	fields := strings.FieldsFunc(string(d.Raw), func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	gids := make([]GID, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGID, err)
		}
		gids[i] = GID(v)
	}
	return gids, nil
}

func (d *xmlData) decodeXML() []GID {
	gids := make([]GID, len(d.Tiles))
	for i, t := range d.Tiles {
		gids[i] = t.GID
	}
	return gids
}

func (d *xmlData) decode() ([]GID, error) {
	switch d.Encoding {
	case "csv":
		return d.decodeCSV()
	case "base64":
		return d.decodeBase64()
	case "":
		return d.decodeXML(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, d.Encoding)
}

func (m *Map) decodeLayer(x *xmlLayer) (Layer, error) {
	l := Layer{
		Kind:   kindNames[x.XMLName.Local],
		Name:   x.Name,
		Width:  x.Width,
		Height: x.Height,
	}
	if l.Width == 0 {
		l.Width = m.Width
	}
	if l.Height == 0 {
		l.Height = m.Height
	}

	if l.Kind != KindTile {
		return l, nil
	}
	if x.Data == nil {
		return l, fmt.Errorf("%w: layer %q has no data", ErrInvalidDataLength, l.Name)
	}

	gids, err := x.Data.decode()
	if err != nil {
		return l, fmt.Errorf("layer %q: %w", l.Name, err)
	}
	if len(gids) != l.Width*l.Height {
		return l, fmt.Errorf("%w: layer %q has %d tiles, expected %d", ErrInvalidDataLength, l.Name, len(gids), l.Width*l.Height)
	}
	l.GIDs = gids

	return l, nil
}

// Read decodes a TMX document from r.
func Read(r io.Reader) (*Map, error) {
	var x xmlMap
	if err := xml.NewDecoder(r).Decode(&x); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	if x.XMLName.Local != "map" {
		return nil, fmt.Errorf("%w: root element is <%s>", ErrSourceUnreadable, x.XMLName.Local)
	}
	if x.Infinite != 0 {
		return nil, ErrInfiniteMap
	}

	m := &Map{
		Orientation: x.Orientation,
		Width:       x.Width,
		Height:      x.Height,
		TileWidth:   x.TileWidth,
		TileHeight:  x.TileHeight,
	}

	for _, ts := range x.Tilesets {
		m.Tilesets = append(m.Tilesets, Tileset{
			FirstGID:   ts.FirstGID,
			Name:       ts.Name,
			Source:     ts.Source,
			TileWidth:  ts.TileWidth,
			TileHeight: ts.TileHeight,
			TileCount:  ts.TileCount,
		})
	}
	sort.Slice(m.Tilesets, func(i, j int) bool { return m.Tilesets[i].FirstGID < m.Tilesets[j].FirstGID })

	for i := range x.Children {
		if _, ok := kindNames[x.Children[i].XMLName.Local]; !ok {
			continue
		}
		l, err := m.decodeLayer(&x.Children[i])
		if err != nil {
			return nil, err
		}
		m.Layers = append(m.Layers, l)
	}

	return m, nil
}

// ReadFile opens and decodes the named TMX file.
func ReadFile(name string) (*Map, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	defer f.Close()

	return Read(f)
}
