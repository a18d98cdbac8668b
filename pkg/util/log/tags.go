// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package log

import "context"

type tagsKey struct{}

// WithTags annotates ctx with a set of key=value strings that every log
// line written through that context will carry, mirroring the teacher's
// ambient-context-tag convention without the full AmbientContext machinery.
func WithTags(ctx context.Context, tags ...string) context.Context {
	existing := tagsFromContext(ctx)
	merged := make([]string, 0, len(existing)+len(tags))
	merged = append(merged, existing...)
	merged = append(merged, tags...)
	return context.WithValue(ctx, tagsKey{}, merged)
}

func tagsFromContext(ctx context.Context) []string {
	v, _ := ctx.Value(tagsKey{}).([]string)
	return v
}
