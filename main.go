package main

import (
	_ "git.listhouse.net/lhn/lhn/src/archive/cmd"
	_ "git.listhouse.net/lhn/lhn/src/devstorage"
	_ "git.listhouse.net/lhn/lhn/src/migration"
	"git.listhouse.net/lhn/lhn/src/listhouse"
)

func main() {
	listhouse.ListhouseCommand.Execute()
}
