package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// WikidataPlace is one knowledge-graph entity near the fix.
type WikidataPlace struct {
	Label       string  `json:"label"`
	Description string  `json:"description"`
	InstanceOf  string  `json:"instance_of"`
	DistanceKm  float64 `json:"distance_km"`
	DistanceM   float64 `json:"distance_m"`
	WikidataID  string  `json:"wikidata_id"`
	WikidataURL string  `json:"wikidata_url"`
}

// WikidataResult is the normalized outcome of one proximity query. It is
// never nil: failures carry the query text and an error message so the
// boundary payload can always be composed from it.
type WikidataResult struct {
	Places []WikidataPlace `json:"places"`
	Query  *string         `json:"query"`
	Raw    json.RawMessage `json:"raw_response"`
	Error  *string         `json:"error"`
}

// sparqlBindings is the JSON bindings shape of a SPARQL query response.
type sparqlBindings struct {
	Results struct {
		Bindings []map[string]struct {
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

// buildWikidataQuery assembles the proximity + label SPARQL query.
// Wikidata expects Point(longitude latitude) order in WKT literals.
func buildWikidataQuery(lat, lon, radiusKm float64) string {
	return fmt.Sprintf(`SELECT ?place ?location ?distance ?placeLabel ?placeDescription ?instanceOfLabel WHERE {
    SERVICE wikibase:around {
      ?place wdt:P625 ?location .
      bd:serviceParam wikibase:center "Point(%s %s)"^^geo:wktLiteral .
      bd:serviceParam wikibase:radius "%s" .
      bd:serviceParam wikibase:distance ?distance .
    }
    OPTIONAL { ?place wdt:P31 ?instanceOf . }
    SERVICE wikibase:label { bd:serviceParam wikibase:language "[AUTO_LANGUAGE],mul,en". }
} ORDER BY ?distance LIMIT 100`,
		fmtCoord(lon), fmtCoord(lat), fmtCoord(radiusKm))
}

// QueryWikidata returns knowledge-graph places within radiusKm of the fix,
// ordered by ascending distance. When no SPARQL endpoint is configured the
// query degrades to an explicit unavailable result instead of an error.
func (c *Client) QueryWikidata(ctx context.Context, lat, lon, radiusKm float64) (*WikidataResult, error) {
	if c.cfg.SPARQLEndpoint == "" {
		msg := "SPARQL endpoint not configured"
		return &WikidataResult{Places: []WikidataPlace{}, Error: &msg}, nil
	}

	query := buildWikidataQuery(lat, lon, radiusKm)
	requestURL := c.cfg.SPARQLEndpoint + "?format=json&query=" + url.QueryEscape(query)

	raw, err := c.get(ctx, requestURL, c.cfg.SPARQLTimeout)
	if err != nil {
		c.logger.WithError(err).Warn("wikidata query failed")
		msg := err.Error()
		return &WikidataResult{Places: []WikidataPlace{}, Query: &query, Error: &msg},
			&CallError{Service: "wikidata", URL: requestURL, Err: err}
	}

	var bindings sparqlBindings
	if err := json.Unmarshal(raw, &bindings); err != nil {
		msg := fmt.Sprintf("decode response: %v", err)
		return &WikidataResult{Places: []WikidataPlace{}, Query: &query, Error: &msg},
			&CallError{Service: "wikidata", URL: requestURL, Err: err}
	}

	places := parseWikidataPlaces(&bindings)

	c.logger.WithFields(map[string]interface{}{
		"lat":    lat,
		"lon":    lon,
		"radius": radiusKm,
		"places": len(places),
	}).Debug("wikidata query successful")

	return &WikidataResult{Places: places, Query: &query, Raw: raw}, nil
}

// parseWikidataPlaces converts SPARQL bindings to places sorted by
// ascending distance.
func parseWikidataPlaces(bindings *sparqlBindings) []WikidataPlace {
	places := make([]WikidataPlace, 0, len(bindings.Results.Bindings))
	for _, b := range bindings.Results.Bindings {
		label := "Unknown"
		if v, ok := b["placeLabel"]; ok && v.Value != "" {
			label = v.Value
		}

		distance := 0.0
		if v, ok := b["distance"]; ok {
			distance, _ = strconv.ParseFloat(v.Value, 64)
		}

		id := wikidataID(b["place"].Value)
		entityURL := ""
		if id != "" {
			entityURL = "https://www.wikidata.org/wiki/" + id
		}

		places = append(places, WikidataPlace{
			Label:       label,
			Description: b["placeDescription"].Value,
			InstanceOf:  b["instanceOfLabel"].Value,
			DistanceKm:  math.Round(distance*1000) / 1000,
			DistanceM:   math.Round(distance*1000*10) / 10,
			WikidataID:  id,
			WikidataURL: entityURL,
		})
	}

	sort.SliceStable(places, func(i, j int) bool {
		return places[i].DistanceKm < places[j].DistanceKm
	})
	return places
}

// wikidataID extracts the entity identifier from its URI, e.g.
// http://www.wikidata.org/entity/Q64 -> Q64.
func wikidataID(entityURI string) string {
	if entityURI == "" {
		return ""
	}
	parts := strings.Split(entityURI, "/")
	return parts[len(parts)-1]
}
