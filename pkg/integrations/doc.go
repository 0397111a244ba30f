// Package integrations holds the upload collaborators and the HTTP
// plumbing they share.
//
// Subpackages:
//
//   - [ipfs]: drives the ipfs CLI to content-address directories and
//     export CAR archives
//   - [nftstorage]: uploads CAR archives to the NFT.Storage pinning service
//
// This package classifies HTTP failures for [httputil.Retry]: network
// errors, 429 and 5xx responses are retryable, everything else is final.
package integrations
