package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "tradesquad"}

	root.AddCommand(serveCMD(), analyzeCMD(), migrateCMD())
	_ = root.Execute()
}
