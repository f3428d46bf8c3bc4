package web

import (
	"encoding/json"
	"net/http"
	"path"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"

	"roadsnap/graph"
	"roadsnap/importing"
	"roadsnap/index"
	"roadsnap/store"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// StartServer loads graph and index from the index folder and serves snap and range
// queries over HTTP.
func StartServer(port string, indexBaseFolder string, options importing.Options) error {
	router, err := initRouter(indexBaseFolder, options)
	if err != nil {
		return err
	}

	sigolo.Infof("Start server on port %s", port)
	return http.ListenAndServe(":"+port, router)
}

func initRouter(indexBaseFolder string, options importing.Options) (*mux.Router, error) {
	roadGraph, err := graph.LoadMemGraph(path.Join(indexBaseFolder, importing.GraphFileName))
	if err != nil {
		return nil, err
	}

	locationIndex := index.NewLocationIndex(roadGraph, store.NewFlatStore(path.Join(indexBaseFolder, index.StoreFileName)))
	if err = locationIndex.SetResolution(options.MinResolutionInMeter); err != nil {
		return nil, err
	}
	if err = locationIndex.SetMaxRegionSearch(options.MaxRegionSearch); err != nil {
		return nil, err
	}
	locationIndex.SetApproximation(options.Approximation)

	found, err := locationIndex.LoadExisting()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Errorf("No location index found in folder %s, run the import first", indexBaseFolder)
	}

	router := mux.NewRouter()
	router.HandleFunc("/snap", snapHandler(roadGraph, locationIndex)).Methods(http.MethodGet)
	router.HandleFunc("/query", queryHandler(roadGraph, locationIndex)).Methods(http.MethodGet)
	return router, nil
}

func snapHandler(roadGraph graph.Graph, locationIndex *index.LocationIndex) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Access-Control-Allow-Origin", "*")
		writer.Header().Set("Content-Type", "application/json")

		lat, latErr := strconv.ParseFloat(request.URL.Query().Get("lat"), 64)
		lon, lonErr := strconv.ParseFloat(request.URL.Query().Get("lon"), 64)
		if latErr != nil || lonErr != nil {
			writeError(writer, http.StatusBadRequest, "Parameters 'lat' and 'lon' must be valid coordinates")
			return
		}

		snap, err := locationIndex.FindClosest(lat, lon, graph.AllEdges)
		if err != nil {
			sigolo.Errorf("Error snapping (%f, %f): %+v", lat, lon, err)
			writeError(writer, http.StatusInternalServerError, "Error executing snap")
			return
		}
		if !snap.IsValid() {
			writeError(writer, http.StatusNotFound, "No road found near the given coordinate")
			return
		}

		featureCollection := geojson.NewFeatureCollection()

		pointFeature := geojson.NewFeature(snap.SnappedPoint())
		pointFeature.Properties["@distance_meter"] = snap.QueryDistance()
		pointFeature.Properties["@snapped_position"] = snap.SnappedPosition().String()
		pointFeature.Properties["@closest_node"] = snap.ClosestNode()
		pointFeature.Properties["@edge_id"] = snap.ClosestEdge().Edge()
		featureCollection.Append(pointFeature)

		edgeFeature := geojson.NewFeature(snap.ClosestEdge().FetchWayGeometry(graph.All))
		edgeFeature.Properties["@edge_id"] = snap.ClosestEdge().Edge()
		featureCollection.Append(edgeFeature)

		writeFeatureCollection(writer, featureCollection)
	}
}

func queryHandler(roadGraph graph.Graph, locationIndex *index.LocationIndex) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Access-Control-Allow-Origin", "*")
		writer.Header().Set("Content-Type", "application/json")

		bbox, err := parseBBox(request)
		if err != nil {
			writeError(writer, http.StatusBadRequest, err.Error())
			return
		}

		featureCollection := geojson.NewFeatureCollection()
		err = locationIndex.Query(bbox, func(edgeId int) {
			edge := roadGraph.EdgeIteratorStateForKey(edgeId * 2)
			feature := geojson.NewFeature(edge.FetchWayGeometry(graph.All))
			feature.Properties["@edge_id"] = edgeId
			feature.Properties["@base_node"] = edge.BaseNode()
			feature.Properties["@adj_node"] = edge.AdjNode()
			featureCollection.Append(feature)
		})
		if err != nil {
			sigolo.Errorf("Error executing range query %v: %+v", bbox, err)
			writeError(writer, http.StatusInternalServerError, "Error executing range query")
			return
		}

		writeFeatureCollection(writer, featureCollection)
	}
}

func parseBBox(request *http.Request) (orb.Bound, error) {
	values := make([]float64, 4)
	for i, name := range []string{"minLon", "minLat", "maxLon", "maxLat"} {
		value, err := strconv.ParseFloat(request.URL.Query().Get(name), 64)
		if err != nil {
			return orb.Bound{}, errors.Errorf("Parameter '%s' must be a valid coordinate", name)
		}
		values[i] = value
	}

	bbox := orb.Bound{
		Min: orb.Point{values[0], values[1]},
		Max: orb.Point{values[2], values[3]},
	}
	if bbox.Min.Lon() > bbox.Max.Lon() || bbox.Min.Lat() > bbox.Max.Lat() {
		return orb.Bound{}, errors.Errorf("Bounding box minimum must not exceed its maximum")
	}
	return bbox, nil
}

func writeFeatureCollection(writer http.ResponseWriter, featureCollection *geojson.FeatureCollection) {
	responseBytes, err := featureCollection.MarshalJSON()
	if err != nil {
		sigolo.Errorf("Error marshalling response: %+v", err)
		writeError(writer, http.StatusInternalServerError, "Error marshalling response")
		return
	}

	_, err = writer.Write(responseBytes)
	if err != nil {
		sigolo.Errorf("Error writing response: %+v", err)
	}
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writer.WriteHeader(status)

	responseBytes, err := json.Marshal(ErrorResponse{Error: message})
	if err != nil {
		sigolo.Errorf("Error creating and marshalling error response object: %+v", err)
		return
	}

	_, err = writer.Write(responseBytes)
	if err != nil {
		sigolo.Errorf("Error writing error response: %+v", err)
	}
}
