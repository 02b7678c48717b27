package ml

import "fmt"

// FlightType is the TIPOVUELO column: national or international.
type FlightType string

const (
	Nacional      FlightType = "N"
	Internacional FlightType = "I"
)

// FlightRecord is the raw input of a single prediction. Field tags follow the
// column names of the SCL dataset.
type FlightRecord struct {
	Airline    string     `json:"OPERA"`
	FlightType FlightType `json:"TIPOVUELO"`
	Month      int        `json:"MES"`
}

// KnownAirlines lists every operator present in the training data. Airlines
// outside this list are rejected at the HTTP boundary.
var KnownAirlines = []string{
	"Aerolineas Argentinas",
	"Aeromexico",
	"Air Canada",
	"Air France",
	"Alitalia",
	"American Airlines",
	"Austral",
	"Avianca",
	"British Airways",
	"Copa Air",
	"Delta Air",
	"Gol Trans",
	"Grupo LATAM",
	"Iberia",
	"JetSmart SPA",
	"K.L.M.",
	"Lacsa",
	"Latin American Wings",
	"Oceanair Linhas Aereas",
	"Plus Ultra Lineas Aereas",
	"Qantas Airways",
	"Sky Airline",
	"United Airlines",
}

var KnownFlightTypes = []FlightType{Internacional, Nacional}

// selectedFeatures is the column order the classifier is trained and served
// with. Changing it invalidates every persisted model artifact.
var selectedFeatures = []string{
	"OPERA_Latin American Wings",
	"MES_7",
	"MES_10",
	"OPERA_Grupo LATAM",
	"MES_12",
	"TIPOVUELO_I",
	"MES_4",
	"MES_11",
	"OPERA_Sky Airline",
	"OPERA_Copa Air",
}

// IsKnownAirline reports whether airline is one of KnownAirlines, compared
// exactly.
func IsKnownAirline(airline string) bool {
	for _, known := range KnownAirlines {
		if known == airline {
			return true
		}
	}
	return false
}

// IsKnownFlightType reports whether flightType is "N" or "I".
func IsKnownFlightType(flightType FlightType) bool {
	return flightType == Nacional || flightType == Internacional
}

// FeatureEncoder one-hot expands airline, flight type and month into the
// 37-wide category space and projects it onto the fixed feature columns.
type FeatureEncoder struct {
	expanded   []string
	position   map[string]int
	projection []int
}

// NewFeatureEncoder builds the encoder for the fixed category sets. It panics
// if a selected column is not part of the expanded space.
func NewFeatureEncoder() FeatureEncoder {
	expanded := make([]string, 0, len(KnownAirlines)+len(KnownFlightTypes)+12)
	for _, airline := range KnownAirlines {
		expanded = append(expanded, airlineColumn(airline))
	}
	for _, flightType := range KnownFlightTypes {
		expanded = append(expanded, flightTypeColumn(flightType))
	}
	for month := 1; month <= 12; month++ {
		expanded = append(expanded, monthColumn(month))
	}

	position := make(map[string]int, len(expanded))
	for i, name := range expanded {
		position[name] = i
	}

	projection := make([]int, len(selectedFeatures))
	for i, name := range selectedFeatures {
		idx, ok := position[name]
		if !ok {
			panic(fmt.Sprintf("selected feature %q is outside the expanded space", name))
		}
		projection[i] = idx
	}

	return FeatureEncoder{
		expanded:   expanded,
		position:   position,
		projection: projection,
	}
}

// Encode returns one feature vector per record. Categories outside the known
// sets set no bit.
func (e FeatureEncoder) Encode(records []FlightRecord) [][]float64 {
	vectors := make([][]float64, len(records))
	for i, record := range records {
		vectors[i] = e.EncodeOne(record)
	}
	return vectors
}

// EncodeOne returns the projected vector of a single record.
func (e FeatureEncoder) EncodeOne(record FlightRecord) []float64 {
	return e.project(e.Expand(record))
}

// Expand returns the full one-hot vector over ExpandedNames.
func (e FeatureEncoder) Expand(record FlightRecord) []float64 {
	vector := make([]float64, len(e.expanded))
	columns := [...]string{
		airlineColumn(record.Airline),
		flightTypeColumn(record.FlightType),
		monthColumn(record.Month),
	}
	for _, column := range columns {
		if idx, ok := e.position[column]; ok {
			vector[idx] = 1
		}
	}
	return vector
}

func (e FeatureEncoder) project(expanded []float64) []float64 {
	vector := make([]float64, len(e.projection))
	for i, idx := range e.projection {
		vector[i] = expanded[idx]
	}
	return vector
}

// FeatureNames returns the projected column names in model order.
func (e FeatureEncoder) FeatureNames() []string {
	return append([]string(nil), selectedFeatures...)
}

func (e FeatureEncoder) ExpandedNames() []string {
	return append([]string(nil), e.expanded...)
}

// Width is the length of every encoded vector.
func (e FeatureEncoder) Width() int {
	return len(e.projection)
}

func airlineColumn(airline string) string {
	return "OPERA_" + airline
}

func flightTypeColumn(flightType FlightType) string {
	return "TIPOVUELO_" + string(flightType)
}

func monthColumn(month int) string {
	return fmt.Sprintf("MES_%d", month)
}
