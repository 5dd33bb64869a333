package model

import (
	"path/filepath"
)

type FileType uint8

const (
	DataFileType FileType = iota
	PrimaryKeyFileType
	MetaFileType
)

const (
	DataFileSuffix       = ".data"
	PrimaryKeyFileSuffix = ".primary"
	MetaFileSuffix       = ".meta"
	IndexFileSuffix      = ".idx"
	TempFileSuffix       = ".tmp"

	indexNameSeparator = "#"
)

// GetFileName returns the path of one of the per-entity files.
func GetFileName(dirPath string, fileType FileType, entity string) string {
	var suffix string
	switch fileType {
	case DataFileType:
		suffix = DataFileSuffix
	case PrimaryKeyFileType:
		suffix = PrimaryKeyFileSuffix
	case MetaFileType:
		suffix = MetaFileSuffix
	}
	return filepath.Join(dirPath, entity+suffix)
}

// GetIndexFileName returns the path of <entity>#<index>.idx.
func GetIndexFileName(dirPath, entity, indexName string) string {
	return filepath.Join(dirPath, entity+indexNameSeparator+indexName+IndexFileSuffix)
}
