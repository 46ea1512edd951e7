// Package io reads and writes the JSON documents netcut works on.
//
// # Graph Format
//
// A graph document lists nodes in topological order:
//
//	{
//	  "name": "resnet_block",
//	  "device": {"type": "cuda", "id": 0},
//	  "inputs": ["data"],
//	  "outputs": ["prob"],
//	  "nodes": [
//	    {"type": "Conv", "inputs": ["data", "conv1_w"], "outputs": ["conv1"],
//	     "args": [{"name": "kernel", "i": 3}, {"name": "pad", "i": 1}]},
//	    {"type": "Relu", "inputs": ["conv1"], "outputs": ["conv1"]},
//	    {"type": "Softmax", "inputs": ["conv1"], "outputs": ["prob"]}
//	  ]
//	}
//
// Every node needs a "type". Any tensor read that is neither a declared
// input nor produced by an earlier node is taken to be a weight. Node
// "name", "args" and "device" are optional.
//
// # Weights Format
//
// Weights use the document of [store.DecodeWeights]:
//
//	{"tensors": [{"name": "conv1_w", "dtype": "float32", "dims": [8, 3, 3, 3], "values": [...]}]}
//
// float16 tensors are written as decimal values and packed on read.
//
// # Hints Format
//
// Shape hints map tensor names to an element type and dimensions:
//
//	{"data": {"dtype": "float32", "dims": [1, 3, 224, 224]}}
//
// # Import and Export
//
// The Read/Write functions work on streams; the Import/Export variants open
// or create the file at a path:
//
//	g, err := io.ImportGraph("model.json")
//	if err != nil {
//	    return err
//	}
//	weights, err := io.ImportWeights("weights.json")
//
// Decoding errors carry [errors.ErrCodeInvalidInput]; a missing file carries
// [errors.ErrCodeFileNotFound].
package io
