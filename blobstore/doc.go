// Package blobstore abstracts where import source files live.
//
// The importer only needs random read access and a size, so the same
// ingestion pipeline can stream a delimited file from the local filesystem
// (memory-mapped), from memory (tests), or from S3-compatible object storage
// (see the s3 and minio subpackages) without materializing it.
package blobstore
