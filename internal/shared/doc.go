// Package shared holds code used across packages that belongs to no single
// layer. Today that is only testutil, the helpers shared by package tests.
package shared
