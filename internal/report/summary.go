package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"reactorlog/internal/model"
)

// unknownAuthor 用于没有归属信息的文件。
const unknownAuthor = "(unknown)"

var authorColor = color.New(color.FgRed, color.Bold)

func authorLabel(author string) string {
	if author == "" {
		return unknownAuthor
	}
	return author
}

// PrintAuthorSummary 按作者汇总出错文件，格式与构建机控制台约定一致：
//
//	************************************************************
//	author:
//	==============================
//	  /path/to/File.java, 2024-01-02 03:04:05
//
// 没有具体文件的记录不列出；没有任何文件时什么也不输出。
func PrintAuthorSummary(writer io.Writer, records []*model.ErrorRecord) error {
	byAuthor := make(map[string]map[string]string)
	for _, record := range records {
		if record == nil || record.File == "" {
			continue
		}
		author := authorLabel(record.Author)
		if byAuthor[author] == nil {
			byAuthor[author] = make(map[string]string)
		}
		byAuthor[author][record.File] = record.CommitDate
	}
	if len(byAuthor) == 0 {
		return nil
	}

	authors := make([]string, 0, len(byAuthor))
	for author := range byAuthor {
		authors = append(authors, author)
	}
	sort.Strings(authors)

	if _, err := fmt.Fprintf(writer, "\n%s\n", strings.Repeat("*", 60)); err != nil {
		return err
	}
	for _, author := range authors {
		if _, err := authorColor.Fprintf(writer, "%s:", author); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(writer, "\n%s\n", strings.Repeat("=", 30)); err != nil {
			return err
		}

		files := make([]string, 0, len(byAuthor[author]))
		for file := range byAuthor[author] {
			files = append(files, file)
		}
		sort.Strings(files)

		for _, file := range files {
			if _, err := fmt.Fprintf(writer, "  %s, %s\n", file, byAuthor[author][file]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(writer); err != nil {
			return err
		}
	}
	return nil
}
