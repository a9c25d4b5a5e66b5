package overpass

import "fmt"

// StationQuery finds at most one train station node within radiusM meters
func StationQuery(radiusM int, lat, lon float64) string {
	return fmt.Sprintf(`[out:json][timeout:25];
(
  node["railway"="station"]["train"="yes"](around:%d,%f,%f);
);
out body 1;`, radiusM, lat, lon)
}

// RailQuery finds rail ways within radiusM meters
func RailQuery(radiusM int, lat, lon float64) string {
	return fmt.Sprintf(`[out:json][timeout:25];
(
  way["railway"="rail"](around:%d,%f,%f);
);
out body;
>;
out skel qt;`, radiusM, lat, lon)
}

// ViewpointQuery finds churches (nodes and ways) within radiusM meters
func ViewpointQuery(radiusM int, lat, lon float64) string {
	return fmt.Sprintf(`[out:json][timeout:25];
(
  node["amenity"="place_of_worship"]["building"="church"](around:%[1]d,%[2]f,%[3]f);
  way["amenity"="place_of_worship"]["building"="church"](around:%[1]d,%[2]f,%[3]f);
);
out center;`, radiusM, lat, lon)
}
