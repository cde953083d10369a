package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// GeocodeResult is the normalized outcome of one reverse-geocoding call.
type GeocodeResult struct {
	APIURL string          `json:"api_url"`
	Raw    json.RawMessage `json:"api_response"`
	Data   *ReverseGeocode `json:"data"`
}

// ReverseGeocode is the parsed Nominatim reverse-geocoding response.
type ReverseGeocode struct {
	PlaceID     int64   `json:"place_id,omitempty"`
	DisplayName string  `json:"display_name,omitempty"`
	Address     Address `json:"address"`
}

// Address represents address details from Nominatim.
type Address struct {
	HouseNumber   string `json:"house_number,omitempty"`
	Road          string `json:"road,omitempty"`
	Neighbourhood string `json:"neighbourhood,omitempty"`
	Suburb        string `json:"suburb,omitempty"`
	City          string `json:"city,omitempty"`
	Town          string `json:"town,omitempty"`
	Village       string `json:"village,omitempty"`
	County        string `json:"county,omitempty"`
	State         string `json:"state,omitempty"`
	Country       string `json:"country,omitempty"`
	CountryCode   string `json:"country_code,omitempty"`
}

// GetCity returns the most specific city-level location, preferring
// city over town over village.
func (a *Address) GetCity() string {
	if a.City != "" {
		return a.City
	}
	if a.Town != "" {
		return a.Town
	}
	if a.Village != "" {
		return a.Village
	}
	return ""
}

// POI is one nearby point of interest.
type POI struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	Class       string  `json:"class"`
	DisplayName string  `json:"display_name"`
	Distance    float64 `json:"distance"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// POIResult is the normalized outcome of one nearby-POI search.
type POIResult struct {
	POIs   []POI           `json:"pois"`
	APIURL string          `json:"api_url"`
	Raw    json.RawMessage `json:"api_response"`
}

// ReverseGeocode resolves the coordinate to an address breakdown.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (*GeocodeResult, error) {
	url := fmt.Sprintf("%s/reverse?format=json&lat=%s&lon=%s&addressdetails=1&extratags=1&namedetails=1&zoom=18",
		c.cfg.BaseURL, fmtCoord(lat), fmtCoord(lon))

	raw, err := c.get(ctx, url, c.cfg.GeocodeTimeout)
	if err != nil {
		c.logger.WithError(err).Warn("reverse geocoding failed")
		return nil, &CallError{Service: "reverse geocoding", URL: url, Err: err}
	}

	var data ReverseGeocode
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &CallError{Service: "reverse geocoding", URL: url, Err: fmt.Errorf("decode response: %w", err)}
	}

	c.logger.WithFields(map[string]interface{}{
		"lat":  lat,
		"lon":  lon,
		"name": data.DisplayName,
	}).Debug("reverse geocoding successful")

	return &GeocodeResult{APIURL: url, Raw: raw, Data: &data}, nil
}

// nominatimSearchItem is one raw entry of the Nominatim search response.
type nominatimSearchItem struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Class       string `json:"class"`
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

const (
	// poiScanLimit caps how many raw search results are considered.
	poiScanLimit = 15
	// poiMinDistanceMeters excludes hits at the camera's own position.
	poiMinDistanceMeters = 10.0
	// metersPerDegree is the flat-earth degree-to-meter approximation used
	// for POI ranges; adequate at search distances, kept for behavioral
	// compatibility.
	metersPerDegree = 111000.0
)

// SearchNearby returns named points of interest around the coordinate.
// The camera bearing is accepted for context but does not filter or
// re-rank results.
func (c *Client) SearchNearby(ctx context.Context, lat, lon float64, bearing *float64) (*POIResult, error) {
	url := fmt.Sprintf("%s/search?format=json&q=&lat=%s&lon=%s&addressdetails=1&extratags=1&limit=20",
		c.cfg.BaseURL, fmtCoord(lat), fmtCoord(lon))

	if bearing != nil {
		c.logger.WithField("bearing", *bearing).Debug("POI search with camera bearing")
	}

	raw, err := c.get(ctx, url, c.cfg.POITimeout)
	if err != nil {
		c.logger.WithError(err).Warn("POI search failed")
		return nil, &CallError{Service: "POI search", URL: url, Err: err}
	}

	var items []nominatimSearchItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &CallError{Service: "POI search", URL: url, Err: fmt.Errorf("decode response: %w", err)}
	}

	pois := filterPOIs(items, lat, lon)

	c.logger.WithFields(map[string]interface{}{
		"found": len(items),
		"kept":  len(pois),
	}).Debug("POI search successful")

	return &POIResult{POIs: pois, APIURL: url, Raw: raw}, nil
}

// filterPOIs keeps named results farther than 10m from the fix, annotated
// with a flat-earth distance in meters rounded to one decimal.
func filterPOIs(items []nominatimSearchItem, lat, lon float64) []POI {
	pois := []POI{}
	for i, item := range items {
		if i >= poiScanLimit {
			break
		}
		itemLat, _ := strconv.ParseFloat(item.Lat, 64)
		itemLon, _ := strconv.ParseFloat(item.Lon, 64)

		distance := math.Sqrt((lat-itemLat)*(lat-itemLat)+(lon-itemLon)*(lon-itemLon)) * metersPerDegree
		if distance <= poiMinDistanceMeters || item.Name == "" {
			continue
		}

		pois = append(pois, POI{
			Name:        item.Name,
			Type:        item.Type,
			Category:    item.Category,
			Class:       item.Class,
			DisplayName: item.DisplayName,
			Distance:    math.Round(distance*10) / 10,
			Lat:         itemLat,
			Lon:         itemLon,
		})
	}
	return pois
}

