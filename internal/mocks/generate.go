// Package mocks provides mock implementations for testing the analysis
// pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// our repository and provider interfaces. The mocks are generated using
// go:generate directives and provide a fluent API for setting up test
// expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	provider := mocks.NewMockInferenceProvider(ctrl)
//	provider.EXPECT().Regress(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.5, nil)
package mocks

// Generate mock for InferenceProvider interface from internal/core package.
// This creates MockInferenceProvider with methods for all InferenceProvider
// interface methods: Classify, Regress, Complete
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=inference_provider_mock.go github.com/convolens/convolens/internal/core InferenceProvider

// Generate mock for ArtifactRepository interface from internal/core package.
// This creates MockArtifactRepository with methods for all ArtifactRepository
// interface methods: Put, Get, Delete
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=artifact_repository_mock.go github.com/convolens/convolens/internal/core ArtifactRepository
