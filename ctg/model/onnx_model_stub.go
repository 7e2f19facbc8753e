//go:build !onnx
// +build !onnx

package model

import "fmt"

// newONNXModel is a stub used when built without the "onnx" build tag.
func newONNXModel(cfg *Config, dir string) (Model, error) {
	return nil, fmt.Errorf("onnx backend not available: build with -tags onnx and export a graph to %s", dir)
}
