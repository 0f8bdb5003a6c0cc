package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/foundry/internal/models"
)

func TestParseRequirements(t *testing.T) {
	content := "# web\nfastapi==0.104.1\n\n-r dev.txt\nuvicorn==0.24.0  # server\n--index-url https://example.org\npytest>=7.0\n"

	assert.Equal(t, []string{"fastapi==0.104.1", "uvicorn==0.24.0", "pytest>=7.0"}, ParseRequirements(content))
}

func TestParsePom(t *testing.T) {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<project xmlns="http://maven.apache.org/POM/4.0.0">
    <parent>
        <groupId>org.springframework.boot</groupId>
        <artifactId>spring-boot-starter-parent</artifactId>
    </parent>
    <dependencies>
        <dependency>
            <groupId>org.springframework.boot</groupId>
            <artifactId>spring-boot-starter-web</artifactId>
        </dependency>
        <dependency>
            <groupId>org.mariadb.jdbc</groupId>
            <artifactId>mariadb-java-client</artifactId>
            <version>3.1.4</version>
        </dependency>
    </dependencies>
    <build>
        <plugins>
            <plugin>
                <groupId>org.springframework.boot</groupId>
                <artifactId>spring-boot-maven-plugin</artifactId>
            </plugin>
        </plugins>
    </build>
</project>`

	deps, err := ParsePom(content)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"org.springframework.boot:spring-boot-starter-web",
		"org.mariadb.jdbc:mariadb-java-client:3.1.4",
	}, deps)
}

func TestParsePom_Invalid(t *testing.T) {
	_, err := ParsePom("<project><dependencies>")
	assert.Error(t, err)
}

func TestDependencies_ByLanguage(t *testing.T) {
	fs := models.FileSet{}
	require.NoError(t, fs.Add("requirements.txt", "requests\n"))
	require.NoError(t, fs.Add("pom.xml", "<project><dependencies><dependency><groupId>g</groupId><artifactId>a</artifactId></dependency></dependencies></project>"))

	py, err := Dependencies(fs, models.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, []string{"requests"}, py)

	java, err := Dependencies(fs, models.LanguageJava)
	require.NoError(t, err)
	assert.Equal(t, []string{"g:a"}, java)

	none, err := Dependencies(models.FileSet{}, models.LanguagePython)
	require.NoError(t, err)
	assert.Empty(t, none)
}
