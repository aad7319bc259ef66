package weather

// DefaultCities is the seed list used by setup-defaults and as the
// fallback for the CITIES setting
var DefaultCities = []City{
	{Name: "Delhi", Latitude: 28.6667, Longitude: 77.2167},
	{Name: "Mumbai", Latitude: 19.0144, Longitude: 72.8479},
	{Name: "Chennai", Latitude: 13.0878, Longitude: 80.2785},
	{Name: "Bangalore", Latitude: 12.9762, Longitude: 77.6033},
	{Name: "Kolkata", Latitude: 22.5697, Longitude: 88.3697},
	{Name: "Hyderabad", Latitude: 17.3753, Longitude: 78.4744},
}
