package model

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// wgs84SRID is the spatial reference ID for plain WGS-84 longitude/latitude,
// the coordinate system every provider adapter and the locality service
// speak.
const wgs84SRID = 4326

// Point builds the canonical geom.Point representation of c, SRID-tagged as
// WGS-84.
func (c Coordinate) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{c.Longitude, c.Latitude}).SetSRID(wgs84SRID)
}

// EncodeEWKB serializes c as little-endian EWKB, the interchange format
// GIS tooling (QGIS, PostGIS's ST_GeomFromEWKB) expects for a SRID-tagged
// point. Used to persist an auxiliary geometry alongside a candidate row
// for spatial tooling, independent of the row's decimal-string
// longitude/latitude columns used for exact round-tripping.
func (c Coordinate) EncodeEWKB() ([]byte, error) {
	data, err := ewkb.Marshal(c.Point(), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "model: encode coordinate as EWKB")
	}
	return data, nil
}

// GeometryWKB returns the candidate's coordinate encoded as EWKB, or
// nil, nil if the row carries no usable coordinate.
func (c Candidate) GeometryWKB() ([]byte, error) {
	if !c.HasCoordinate() {
		return nil, nil
	}
	coord, err := c.Coordinate()
	if err != nil {
		return nil, err
	}
	return coord.EncodeEWKB()
}
