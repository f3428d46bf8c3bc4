package main

import (
	"fmt"
	"path"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"roadsnap/graph"
	"roadsnap/importing"
	"roadsnap/index"
	"roadsnap/store"
	"roadsnap/web"
)

const VERSION = "v0.1.0"

var cli struct {
	Logging      string      `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info"`
	Version      VersionFlag `help:"Print version information and quit" name:"version" short:"v"`
	Index        string      `help:"The index folder." default:"roadsnap-index" short:"i"`
	Resolution   int         `help:"Minimum tile width in meter." default:"300"`
	RegionSearch int         `help:"Maximum number of tile rings to search." default:"4"`
	Exact        bool        `help:"Use the precise earth model instead of the fast approximation for queries."`
	Import       struct {
		Input string `help:"The input file. Either .osm or .osm.pbf." placeholder:"<input-file>" arg:"" type:"existingfile"`
	} `cmd:"" help:"Imports the given OSM file and builds the location index."`
	Snap struct {
		Lat float64 `help:"Latitude of the query point." arg:""`
		Lon float64 `help:"Longitude of the query point." arg:""`
	} `cmd:"" help:"Returns the closest road for the given coordinate as GeoJSON."`
	Query struct {
		MinLon float64 `help:"Western border of the bounding box." arg:""`
		MinLat float64 `help:"Southern border of the bounding box." arg:""`
		MaxLon float64 `help:"Eastern border of the bounding box." arg:""`
		MaxLat float64 `help:"Northern border of the bounding box." arg:""`
	} `cmd:"" help:"Returns all indexed roads overlapping the bounding box as GeoJSON."`
	Server struct {
		Port string `help:"Port to listen on." default:"8080"`
	} `cmd:"" help:"Starts the HTTP API."`
}

type VersionFlag string

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

func main() {
	ctx := kong.Parse(
		&cli,
		kong.Name("roadsnap"),
		kong.Description("A nearest-road index for OSM road networks."),
		kong.Vars{
			"version": VERSION,
		},
	)

	if strings.ToLower(cli.Logging) == "debug" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
	} else if strings.ToLower(cli.Logging) == "trace" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_TRACE)
	} else if strings.ToLower(cli.Logging) == "info" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
	} else {
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
		sigolo.Fatalf("Unknown logging level '%s'", cli.Logging)
	}

	options := importing.Options{
		MinResolutionInMeter: cli.Resolution,
		MaxRegionSearch:      cli.RegionSearch,
		Approximation:        !cli.Exact,
	}

	switch ctx.Command() {
	case "import <input>":
		err := importing.Import(cli.Import.Input, cli.Index, options)
		sigolo.FatalCheck(err)
	case "snap <lat> <lon>":
		_, locationIndex := loadIndex(options)
		defer locationIndex.Close()

		snap, err := locationIndex.FindClosest(cli.Snap.Lat, cli.Snap.Lon, graph.AllEdges)
		sigolo.FatalCheck(err)

		if !snap.IsValid() {
			sigolo.Fatalf("No road found near (%f, %f)", cli.Snap.Lat, cli.Snap.Lon)
		}

		sigolo.Debugf("Snapped onto edge %d (%s) in %.1fm", snap.ClosestEdge().Edge(), snap.SnappedPosition(), snap.QueryDistance())
		printSnapAsGeoJson(snap)
	case "query <min-lon> <min-lat> <max-lon> <max-lat>":
		roadGraph, locationIndex := loadIndex(options)
		defer locationIndex.Close()

		bbox := orb.Bound{
			Min: orb.Point{cli.Query.MinLon, cli.Query.MinLat},
			Max: orb.Point{cli.Query.MaxLon, cli.Query.MaxLat},
		}

		featureCollection := geojson.NewFeatureCollection()
		err := locationIndex.Query(bbox, func(edgeId int) {
			edge := roadGraph.EdgeIteratorStateForKey(edgeId * 2)
			feature := geojson.NewFeature(edge.FetchWayGeometry(graph.All))
			feature.Properties["@edge_id"] = edgeId
			featureCollection.Append(feature)
		})
		sigolo.FatalCheck(err)

		printFeatureCollection(featureCollection)
	case "server":
		err := web.StartServer(cli.Server.Port, cli.Index, options)
		sigolo.FatalCheck(err)
	default:
		sigolo.Errorf("Unknown command '%s'", ctx.Command())
	}
}

func loadIndex(options importing.Options) (*graph.MemGraph, *index.LocationIndex) {
	roadGraph, err := graph.LoadMemGraph(path.Join(cli.Index, importing.GraphFileName))
	sigolo.FatalCheck(err)

	locationIndex := index.NewLocationIndex(roadGraph, store.NewFlatStore(path.Join(cli.Index, index.StoreFileName)))
	sigolo.FatalCheck(locationIndex.SetResolution(options.MinResolutionInMeter))
	sigolo.FatalCheck(locationIndex.SetMaxRegionSearch(options.MaxRegionSearch))
	locationIndex.SetApproximation(options.Approximation)

	found, err := locationIndex.LoadExisting()
	sigolo.FatalCheck(err)
	if !found {
		sigolo.Fatalf("No location index found in folder %s, run the import first", cli.Index)
	}

	return roadGraph, locationIndex
}

func printSnapAsGeoJson(snap *index.Snap) {
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

	printFeatureCollection(featureCollection)
}

func printFeatureCollection(featureCollection *geojson.FeatureCollection) {
	geojsonBytes, err := featureCollection.MarshalJSON()
	sigolo.FatalCheck(err)
	fmt.Println(string(geojsonBytes))
}
