package main

import (
	"bytes"
	"fmt"

	"github.com/stemsi/whitelist-backend/internal/model"
	"gopkg.in/yaml.v3"
)

// definition is the YAML layout of a quiz seed file.
type definition struct {
	Title        string `yaml:"title"`
	Instructions string `yaml:"instructions"`
	Open         bool   `yaml:"open"`
	Questions    []struct {
		Prompt    string `yaml:"prompt"`
		TimeLimit int    `yaml:"time_limit"`
	} `yaml:"questions"`
}

// parseDefinition decodes a seed file into a quiz. Questions are numbered in
// file order. Unknown keys are rejected.
func parseDefinition(raw []byte) (*model.Quiz, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var def definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	if def.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if len(def.Questions) == 0 {
		return nil, fmt.Errorf("at least one question is required")
	}

	quiz := &model.Quiz{
		Title:        def.Title,
		Instructions: def.Instructions,
		Open:         def.Open,
		Questions:    make([]model.Question, 0, len(def.Questions)),
	}
	for i, q := range def.Questions {
		if q.Prompt == "" {
			return nil, fmt.Errorf("question %d: prompt is required", i+1)
		}
		if q.TimeLimit <= 0 {
			return nil, fmt.Errorf("question %d: time_limit must be positive", i+1)
		}
		quiz.Questions = append(quiz.Questions, model.Question{
			Prompt:    q.Prompt,
			TimeLimit: q.TimeLimit,
			OrderNum:  i + 1,
		})
	}
	return quiz, nil
}
