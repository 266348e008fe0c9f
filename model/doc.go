// Package model defines the minimal generation interface a model-backed
// agent runtime needs to execute delegated tasks: one prompt in, one
// completion out. Provider adapters live in the anthropic and openai
// subpackages; Mock provides deterministic completions for tests.
package model
