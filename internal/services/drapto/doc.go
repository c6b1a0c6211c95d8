// Package drapto wraps the Drapto Go library as the alternative converter
// backend.
//
// Drapto always writes <stem>.mkv into an output directory, so Library.Encode
// runs it inside a private scratch directory beside the requested target and
// moves the finished file into place. The reporter adapter folds Drapto's
// callbacks into ProgressUpdate values the converter can sample.
package drapto
