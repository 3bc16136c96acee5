package banner

import "fmt"

const Version = "1.0.0"

func Print() {
	banner := `
    __                                          __       __
   / /_  __  ______  ___  ______      ______ _/ /______/ /_
  / __ \/ / / / __ \/ _ \/ ___/ | /| / / __ ` + "`" + `/ __/ ___/ __ \
 / / / / /_/ / /_/ /  __/ /   | |/ |/ / /_/ / /_/ /__/ / / /
/_/ /_/\__, / .___/\___/_/    |__/|__/\__,_/\__/\___/_/ /_/
      /____/_/  v%s - Alarm Pipeline
    `
	fmt.Printf(banner, Version)
	fmt.Println("\n------------------------------------------------")
}
