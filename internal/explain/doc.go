// Package explain attributes order value to order features.
//
// A random forest of CART regression trees is fitted on the selected
// features. Each prediction is then decomposed with exact interventional
// TreeSHAP: for every background row the Shapley values of the game
// "replace features of the background row with those of the explained row"
// are computed in one pass over each tree, and averaged over the background.
// The decomposition is exact, so
//
//	BaseValue + sum(Values[i]) == Predictions[i]
//
// holds for every explained row.
package explain
