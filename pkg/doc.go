// Package pkg provides the core libraries for nftgen.
//
// # Overview
//
// nftgen builds image collections out of layered PNG traits. Each item
// draws one weighted variant per category, composites the draws into a
// single image and records the same draws as metadata attributes.
//
// # Architecture
//
//	layers/{category}/{name}#{weight}.png
//	         ↓
//	    [layer] (catalog discovery + weighted draws)
//	         ↓
//	    [raster] (PNG decode, cached layer buffers)
//	         ↓
//	    [compose] (topmost opaque pixel wins)
//	         ↓
//	    [metadata] (records built from the same draws)
//	         ↓
//	output/images/{i}.png + output/metadata/{i} + output/report.json
//
// [pipeline] runs items on a bounded worker pool and reports a per-item
// outcome, so failed or skipped items can be resumed. [integrations]
// uploads a finished collection to IPFS.
//
// # Quick Start
//
//	runner := pipeline.NewRunner(nil, nil, logger)
//	report, err := runner.Generate(ctx, pipeline.Options{
//	    Count:          100,
//	    LayersPath:     "./layers",
//	    OutputPath:     "./out",
//	    LayersOrder:    []string{"background", "face", "eyes"},
//	    CollectionName: "JustGreat",
//	    Description:    "A generated collection",
//	})
package pkg
