package reconcile

// CanonicalBridge is a bridge the map knows how to place.
type CanonicalBridge struct {
	Name      string  `json:"name"`
	Location  string  `json:"location"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

var canonicalBridges = []CanonicalBridge{
	{Name: "Bridge 1", Location: "Lakeshore Rd. (St. Catharines)", Latitude: 43.21623852274046, Longitude: -79.2121272063928},
	{Name: "Bridge 3A", Location: "Carlton St. (St. Catharines)", Latitude: 43.191911962120976, Longitude: -79.20093237793138},
	{Name: "Bridge 4", Location: "Queenston St. (St. Catharines)", Latitude: 43.16599516348815, Longitude: -79.19444584468829},
	{Name: "Bridge 5", Location: "Glendale Ave. (St. Catharines)", Latitude: 43.14549183202389, Longitude: -79.1923500322874},
	{Name: "Bridge 11", Location: "Highway 20 (Thorold)", Latitude: 43.076878412812015, Longitude: -79.21046458925635},
	{Name: "Bridge 19", Location: "Main St. (Port Colborne)", Latitude: 42.90152711319618, Longitude: -79.24537865530645},
	{Name: "Bridge 19A", Location: "Mellanby Ave. (Port Colborne)", Latitude: 42.8965101134639, Longitude: -79.24656798681},
	{Name: "Bridge 21", Location: "Clarence St. (Port Colborne)", Latitude: 42.8867208876898, Longitude: -79.24838049606134},
}

// CanonicalBridges returns a copy of the compiled-in bridge list, north to south.
func CanonicalBridges() []CanonicalBridge {
	return append([]CanonicalBridge(nil), canonicalBridges...)
}
