// Package segmentation groups customers by ordering behaviour.
//
// Each user becomes a vector of four features (order count, total spent,
// average order value, average rating). Features are standardized on the
// data of the call and clustered with k-means seeded by k-means++. A fixed
// seed makes the labels reproducible; label numbers carry no ranking.
package segmentation
