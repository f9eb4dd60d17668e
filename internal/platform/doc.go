// Package platform maps source URLs to the closed set of platforms the
// engine knows how to dispatch.
package platform
