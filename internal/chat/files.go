package chat

import (
	"fmt"
	"path/filepath"
	"strings"
)

// humanSize formats a byte count the way the chat UI renders attachments.
func humanSize(n int64) string {
	switch {
	case n <= 0:
		return ""
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB", float64(n)/(1024*1024*1024))
	}
}

// fileIcon maps a file name to the UI icon class clients expect.
func fileIcon(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "fa-file-pdf"
	case ".doc", ".docx":
		return "fa-file-word"
	case ".xls", ".xlsx":
		return "fa-file-excel"
	case ".zip", ".rar", ".7z", ".tar", ".gz":
		return "fa-file-archive"
	case ".mp3", ".wav", ".ogg":
		return "fa-file-audio"
	case ".mp4", ".avi", ".mov", ".mkv":
		return "fa-file-video"
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return "fa-file-image"
	case ".txt", ".md":
		return "fa-file-lines"
	default:
		return "fa-file"
	}
}
